package internal

import (
	"log/slog"
	"strconv"
)

// Addr4 returns a slog.Attr with the dotted-quad form of an IPv4 address.
func Addr4(key string, addr [4]byte) slog.Attr {
	var buf [15]byte
	return slog.String(key, string(AppendAddr4(buf[:0], addr)))
}

// Addr6 returns a slog.Attr with the colon-separated hex form of a
// 6-byte hardware (MAC) address.
func Addr6(key string, addr [6]byte) slog.Attr {
	var buf [17]byte
	return slog.String(key, string(AppendAddr6(buf[:0], addr)))
}

// AppendAddr4 appends the dotted-quad text form of addr to dst.
func AppendAddr4(dst []byte, addr [4]byte) []byte {
	for i, b := range addr {
		if i != 0 {
			dst = append(dst, '.')
		}
		dst = strconv.AppendUint(dst, uint64(b), 10)
	}
	return dst
}

// AppendAddr6 appends the colon-separated hex text form of addr to dst.
func AppendAddr6(dst []byte, addr [6]byte) []byte {
	for i, b := range addr {
		if i != 0 {
			dst = append(dst, ':')
		}
		if b < 16 {
			dst = append(dst, '0')
		}
		dst = strconv.AppendUint(dst, uint64(b), 16)
	}
	return dst
}
