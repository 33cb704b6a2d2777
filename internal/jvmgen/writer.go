package jvmgen

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// ByteWriter 大端序字节写入器
type ByteWriter struct {
	buf bytes.Buffer
}

// NewByteWriter 创建新的字节写入器
func NewByteWriter() *ByteWriter {
	return &ByteWriter{}
}

// WriteByte 写入单个字节
func (w *ByteWriter) WriteByte(b byte) error {
	return w.buf.WriteByte(b)
}

// WriteU8 写入无符号字节
func (w *ByteWriter) WriteU8(v uint8) {
	w.buf.WriteByte(v)
}

// WriteI8 写入有符号字节
func (w *ByteWriter) WriteI8(v int8) {
	w.buf.WriteByte(byte(v))
}

// WriteU16 写入无符号短整型
func (w *ByteWriter) WriteU16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

// WriteI16 写入有符号短整型
func (w *ByteWriter) WriteI16(v int16) {
	w.WriteU16(uint16(v))
}

// WriteU32 写入无符号整型
func (w *ByteWriter) WriteU32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// WriteU64 写入无符号长整型
func (w *ByteWriter) WriteU64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// WriteBytes 写入字节数组
func (w *ByteWriter) WriteBytes(b []byte) {
	w.buf.Write(b)
}

// Bytes 返回已写入的字节
func (w *ByteWriter) Bytes() []byte {
	return w.buf.Bytes()
}

// Len 返回当前长度
func (w *ByteWriter) Len() int {
	return w.buf.Len()
}

// Reset 重置写入器
func (w *ByteWriter) Reset() {
	w.buf.Reset()
}

// ByteReader 大端序字节读取器，第一次越界后所有读取返回零值
type ByteReader struct {
	data []byte
	pos  int
	err  error
}

// NewByteReader 创建读取器
func NewByteReader(data []byte) *ByteReader {
	return &ByteReader{data: data}
}

func (r *ByteReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = errors.Wrapf(io.ErrUnexpectedEOF, "need %d bytes at offset %d", n, r.pos)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

// U8 读取无符号字节
func (r *ByteReader) U8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

// U16 读取无符号短整型
func (r *ByteReader) U16() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

// U32 读取无符号整型
func (r *ByteReader) U32() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

// U64 读取无符号长整型
func (r *ByteReader) U64() uint64 {
	if b := r.take(8); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// Bytes 读取 n 个字节（复制）
func (r *ByteReader) Bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

// Pos 当前偏移
func (r *ByteReader) Pos() int { return r.pos }

// Remaining 剩余字节数
func (r *ByteReader) Remaining() int { return len(r.data) - r.pos }

// Err 第一次读取错误
func (r *ByteReader) Err() error { return r.err }
