package wire

import "github.com/cockroachdb/errors"

var (
	// ErrShortRead 读取越过已写入数据的末尾
	ErrShortRead = errors.New("wire: short read")
	// ErrWireFormat 报文格式非法
	ErrWireFormat = errors.New("wire: malformed message")
)
