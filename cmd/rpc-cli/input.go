package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"

	"github.com/2tvenom/cbor"
	"github.com/pkg/errors"
)

const (
	formatRaw  = "raw"
	formatJSON = "json"
	formatCBOR = "cbor"
)

var stdin io.Reader = os.Stdin

// readData resolves a single argument: '-' reads STDIN, '@path' reads a file, anything else is taken literally.
func readData(input string) ([]byte, error) {
	switch {
	case input == "":
		return nil, nil
	case input == "-":
		return io.ReadAll(stdin)
	case strings.HasPrefix(input, "@"):
		b, err := os.ReadFile(input[1:])
		if err != nil {
			return nil, errors.Wrapf(err, "read input file %s failed", input[1:])
		}
		return b, nil
	default:
		return []byte(input), nil
	}
}

// readInputs expands every input into payloads. STDIN and files produce one payload per line.
func readInputs(inputs []string) (out [][]byte, err error) {
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		switch {
		case input == "-":
			out, err = appendLines(out, stdin)
		case strings.HasPrefix(input, "@"):
			var f *os.File
			if f, err = os.Open(input[1:]); err != nil {
				return nil, errors.Wrapf(err, "open input file %s failed", input[1:])
			}
			out, err = appendLines(out, f)
			_ = f.Close()
		default:
			out = append(out, []byte(input))
		}
		if err != nil {
			return nil, err
		}
	}
	return
}

func appendLines(out [][]byte, r io.Reader) ([][]byte, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		out = append(out, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read lines failed")
	}
	return out, nil
}

// encodePayload converts user input into the payload format.
func encodePayload(format string, data []byte) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", formatRaw:
		return data, nil
	case formatJSON:
		if !json.Valid(data) {
			return nil, errors.Errorf("invalid json input: %q", data)
		}
		return data, nil
	case formatCBOR:
		var v interface{}
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, errors.Wrap(err, "cbor input must be json")
		}
		var buf bytes.Buffer
		encoder := cbor.NewEncoder(&buf)
		if _, err := encoder.Marshal(v); err != nil {
			return nil, errors.Wrap(err, "encode cbor failed")
		}
		return buf.Bytes(), nil
	default:
		return nil, errors.Errorf("unsupported data format: %s", format)
	}
}
