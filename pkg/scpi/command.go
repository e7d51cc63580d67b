// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scpi

import "strings"

// Terminator ends every request line and text reply
const Terminator = '\n'

// Command is a single SCPI request line
type Command string

// Validate rejects commands containing bytes >= 0x80.
// The error names the first offending byte and its position.
func (c Command) Validate() error {
	s := string(c)
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return &TransportError{
				Kind:     KindNonASCII,
				Command:  strings.TrimSpace(s),
				Byte:     s[i],
				Position: i,
			}
		}
	}
	return nil
}

// IsQuery reports whether the command expects a reply
func (c Command) IsQuery() bool {
	head, _, _ := strings.Cut(strings.TrimSpace(string(c)), " ")
	return strings.HasSuffix(head, "?")
}

// wire returns the encoded request line
func (c Command) wire() []byte {
	s := string(c)
	if !strings.HasSuffix(s, "\n") {
		s += "\n"
	}
	return []byte(s)
}
