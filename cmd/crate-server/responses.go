package main

import (
	"io"
	"strconv"
)

var (
	respOK   = []byte("+OK\r\n")
	respZero = []byte(":0\r\n")
	respOne  = []byte(":1\r\n")
)

func writeOKResponse(w io.Writer) error {
	_, err := w.Write(respOK)
	return err
}

func writeErrorResponse(w io.Writer, errStr string) error {
	buf := make([]byte, 0, 1+len(errStr)+2)
	buf = append(buf, '-')
	buf = append(buf, errStr...)
	buf = append(buf, '\r', '\n')
	_, err := w.Write(buf)
	return err
}

func writeBulkStringResponse(w io.Writer, s string) error {
	buf := make([]byte, 0, 16+len(s))
	buf = append(buf, '$')
	buf = strconv.AppendInt(buf, int64(len(s)), 10)
	buf = append(buf, '\r', '\n')
	buf = append(buf, s...)
	buf = append(buf, '\r', '\n')
	_, err := w.Write(buf)
	return err
}

func writeIntegerResponse64(w io.Writer, i int64) error {
	if i == 0 {
		_, err := w.Write(respZero)
		return err
	}
	if i == 1 {
		_, err := w.Write(respOne)
		return err
	}
	buf := make([]byte, 0, 24)
	buf = append(buf, ':')
	buf = strconv.AppendInt(buf, i, 10)
	buf = append(buf, '\r', '\n')
	_, err := w.Write(buf)
	return err
}
