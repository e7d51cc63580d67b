// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scpi

import (
	"context"
	"fmt"
	"strconv"
)

const (
	// BlockHeader starts a definite-length block
	BlockHeader = '#'

	// maxBlockPrefix bounds the ASCII response header before '#'
	// (e.g. "C1:WF DAT2," or "DESC,")
	maxBlockPrefix = 256
)

// readBlock reads '#', one width digit n, n length digits, exactly length
// payload bytes and then one terminator byte.
func (c *Channel) readBlock(ctx context.Context, cmd string) ([]byte, error) {
	if err := c.skipBlockPrefix(ctx, cmd); err != nil {
		return nil, err
	}

	width, err := c.readByte(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if width < '1' || width > '9' {
		if width == '0' {
			return nil, malformed(cmd, "indefinite-length block not supported")
		}
		return nil, malformed(cmd, "invalid length width 0x%02X", width)
	}

	digits, err := c.readExact(ctx, cmd, int(width-'0'))
	if err != nil {
		return nil, err
	}
	length, err := parseBlockLength(digits)
	if err != nil {
		return nil, malformed(cmd, "%v", err)
	}

	payload, err := c.readExact(ctx, cmd, length)
	if err != nil {
		return nil, err
	}

	term, err := c.readByte(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if term != Terminator {
		c.logger.Warn().Str("cmd", cmd).Uint8("byte", term).Msg("unexpected block terminator")
	}
	return payload, nil
}

// skipBlockPrefix consumes the ASCII reply header up to and including '#'
func (c *Channel) skipBlockPrefix(ctx context.Context, cmd string) error {
	prefix := make([]byte, 0, 16)
	for {
		b, err := c.readByte(ctx, cmd)
		if err != nil {
			return err
		}
		if b == BlockHeader {
			return nil
		}
		if b == Terminator {
			return malformed(cmd, "text reply %q where a block was expected", prefix)
		}
		if b >= 0x80 {
			return malformed(cmd, "binary byte 0x%02X before block header", b)
		}
		prefix = append(prefix, b)
		if len(prefix) > maxBlockPrefix {
			return malformed(cmd, "no block header within %d bytes", maxBlockPrefix)
		}
	}
}

func parseBlockLength(digits []byte) (int, error) {
	for _, d := range digits {
		if d < '0' || d > '9' {
			return 0, fmt.Errorf("non-digit 0x%02X in block length", d)
		}
	}
	n, err := strconv.ParseInt(string(digits), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("block length %q: %w", digits, err)
	}
	if n > int64(^uint32(0)>>1) {
		return 0, fmt.Errorf("block length %d too large", n)
	}
	return int(n), nil
}

// EncodeBlock builds a definite-length block followed by the terminator
func EncodeBlock(payload []byte) []byte {
	length := strconv.Itoa(len(payload))
	out := make([]byte, 0, 2+len(length)+len(payload)+1)
	out = append(out, BlockHeader, byte('0'+len(length)))
	out = append(out, length...)
	out = append(out, payload...)
	return append(out, Terminator)
}
