// Command muhash-digest computes the MuHash digest of a list of operations.
//
// Each input line is either "+<hex>" to insert an element or "-<hex>" to
// remove one. Blank lines and lines starting with '#' are skipped.
package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Bren2010/muhash/accumulator"
	"github.com/Bren2010/muhash/crypto/muhash"
	"github.com/Bren2010/muhash/utxo"
)

const maxLineSize = 16 << 20

var (
	inFile   = flag.String("in", "", "File to read operations from. Reads stdin if empty or \"-\".")
	workers  = flag.Int("workers", 0, "Number of goroutines to hash with. Zero means one per CPU.")
	utxoMode = flag.Bool("utxo", false, "Require every element to be an encoded UTXO entry.")
	rawOrder = flag.Bool("raw", false, "Print the digest in raw byte order instead of display order.")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	h, err := run(ctx, *inFile)
	if err != nil {
		logrus.Fatal(err)
	}
	if *rawOrder {
		fmt.Println(h.RawHex())
	} else {
		fmt.Println(h)
	}
}

// run reads operations from the named file, or stdin, and returns the digest
// of the resulting set.
func run(ctx context.Context, filename string) (muhash.Hash, error) {
	in := os.Stdin
	if filename != "" && filename != "-" {
		fh, err := os.Open(filename)
		if err != nil {
			return muhash.Hash{}, err
		}
		defer fh.Close()
		in = fh
	}

	c, err := readOperations(in, *utxoMode)
	if err != nil {
		return muhash.Hash{}, err
	}
	logrus.WithField("operations", c.Len()).Debug("Read input.")

	ms, err := c.Build(ctx, *workers)
	if err != nil {
		return muhash.Hash{}, err
	}
	return ms.Digest()
}

// readOperations parses one operation per line from r into a Collector.
func readOperations(r io.Reader, utxoMode bool) (*accumulator.Collector, error) {
	c := accumulator.NewCollector()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}

		data, err := hex.DecodeString(line[1:])
		if err != nil {
			return nil, errors.Wrapf(err, "line %v", lineNo)
		}
		if utxoMode {
			if _, err := utxo.ParseEntry(data); err != nil {
				return nil, errors.Wrapf(err, "line %v", lineNo)
			}
		}

		switch line[0] {
		case '+':
			c.Insert(data)
		case '-':
			c.Remove(data)
		default:
			return nil, errors.Errorf("line %v: operation must start with '+' or '-'", lineNo)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return c, nil
}
