package grove

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"grove/internal/base"
)

// Bulk drivers: load whitespace-separated integer keys from a file and
// feed them through the tree one operation at a time. The record
// identifier derives from the key the same way for every driver, so
// mixed insert/remove workloads stay consistent.

// InsertFromFile inserts every integer key listed in the file.
func (t *BTree) InsertFromFile(path string) error {
	return t.scanFile(path, func(v int64) error {
		_, err := t.Insert(Int64Key(v, t.keySize), base.NewRID(v))
		return err
	})
}

// RemoveFromFile removes every integer key listed in the file.
func (t *BTree) RemoveFromFile(path string) error {
	return t.scanFile(path, func(v int64) error {
		return t.Remove(Int64Key(v, t.keySize))
	})
}

// BatchOpsFromFile executes a mixed workload: each pair of tokens is
// "i <key>" (insert) or "d <key>" (delete). Unknown instructions are
// skipped.
func (t *BTree) BatchOpsFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		op := sc.Text()
		if !sc.Scan() {
			break
		}
		v, err := strconv.ParseInt(sc.Text(), 10, 64)
		if err != nil {
			return fmt.Errorf("batch ops %s: %w", path, err)
		}
		switch op {
		case "i":
			if _, err := t.Insert(Int64Key(v, t.keySize), base.NewRID(v)); err != nil {
				return err
			}
		case "d":
			if err := t.Remove(Int64Key(v, t.keySize)); err != nil {
				return err
			}
		default:
			t.log.Warn("skipping unknown batch instruction", "op", op)
		}
	}
	return sc.Err()
}

func (t *BTree) scanFile(path string, op func(int64) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Split(bufio.ScanWords)
	for sc.Scan() {
		v, err := strconv.ParseInt(sc.Text(), 10, 64)
		if err != nil {
			return fmt.Errorf("scan %s: %w", path, err)
		}
		if err := op(v); err != nil {
			return err
		}
	}
	return sc.Err()
}
