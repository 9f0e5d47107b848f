// Package crosscheck synthesizes reference-sorted datasets using three
// independent, real storage engines and returns their iteration order
// as an oracle for "keys are sorted" (SPEC_FULL.md section 8, property
// 3); the verifier's own tests do not import it. This mirrors the reference
// engine's own benchmarks package, which imports mdbx-go, gorocksdb and
// bbolt side by side with the pure-Go engine from a package boundary
// with no build tags; crosscheck does the same, kept separate from the
// core verifier so none of these become a runtime dependency of Verify.
package crosscheck

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	mdbxgo "github.com/erigontech/mdbx-go/mdbx"
	"github.com/tecbot/gorocksdb"
	bolt "go.etcd.io/bbolt"
)

// Oracle is one engine's observed key order for a dataset.
type Oracle struct {
	Engine string
	Keys   [][]byte
}

// BuildOracles loads pairs into three independent engines under dir and
// returns each engine's own in-order key iteration, so callers can
// assert all three (and the verifier's page-level sort check) agree.
func BuildOracles(dir string, pairs map[string]string) ([]Oracle, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	oracles := make([]Oracle, 0, 3)

	boltKeys, err := boltOracle(filepath.Join(dir, "crosscheck_bolt.db"), pairs)
	if err != nil {
		return nil, fmt.Errorf("crosscheck: bbolt: %w", err)
	}
	oracles = append(oracles, Oracle{Engine: "bbolt", Keys: boltKeys})

	mdbxKeys, err := mdbxOracle(filepath.Join(dir, "crosscheck_mdbx"), pairs)
	if err != nil {
		return nil, fmt.Errorf("crosscheck: mdbx: %w", err)
	}
	oracles = append(oracles, Oracle{Engine: "mdbx", Keys: mdbxKeys})

	rocksKeys, err := rocksOracle(filepath.Join(dir, "crosscheck_rocksdb"), pairs)
	if err != nil {
		return nil, fmt.Errorf("crosscheck: rocksdb: %w", err)
	}
	oracles = append(oracles, Oracle{Engine: "rocksdb", Keys: rocksKeys})

	return oracles, nil
}

func sortedKeys(pairs map[string]string) []string {
	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func boltOracle(path string, pairs map[string]string) ([][]byte, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	defer os.Remove(path)

	bucketName := []byte("crosscheck")
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		for k, v := range pairs {
			if err := b.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out [][]byte
	err = db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			cp := make([]byte, len(k))
			copy(cp, k)
			out = append(out, cp)
		}
		return nil
	})
	return out, err
}

func mdbxOracle(dir string, pairs map[string]string) ([][]byte, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	env, err := mdbxgo.NewEnv()
	if err != nil {
		return nil, err
	}
	defer env.Close()
	if err := env.SetMaxDBs(1); err != nil {
		return nil, err
	}
	if err := env.Open(dir, 0, 0o664); err != nil {
		return nil, err
	}

	var out [][]byte
	err = env.Update(func(txn *mdbxgo.Txn) error {
		dbi, err := txn.OpenDBI("crosscheck", mdbxgo.Create, nil, nil)
		if err != nil {
			return err
		}
		for k, v := range pairs {
			if err := txn.Put(dbi, []byte(k), []byte(v), 0); err != nil {
				return err
			}
		}
		cur, err := txn.OpenCursor(dbi)
		if err != nil {
			return err
		}
		defer cur.Close()
		for {
			k, _, err := cur.Get(nil, nil, mdbxgo.Next)
			if mdbxgo.IsNotFound(err) {
				break
			}
			if err != nil {
				return err
			}
			cp := make([]byte, len(k))
			copy(cp, k)
			out = append(out, cp)
		}
		return nil
	})
	return out, err
}

func rocksOracle(dir string, pairs map[string]string) ([][]byte, error) {
	defer os.RemoveAll(dir)

	opts := gorocksdb.NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	defer opts.Destroy()

	db, err := gorocksdb.OpenDb(opts, dir)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	wo := gorocksdb.NewDefaultWriteOptions()
	defer wo.Destroy()
	for k, v := range pairs {
		if err := db.Put(wo, []byte(k), []byte(v)); err != nil {
			return nil, err
		}
	}

	ro := gorocksdb.NewDefaultReadOptions()
	defer ro.Destroy()
	it := db.NewIterator(ro)
	defer it.Close()

	var out [][]byte
	for it.SeekToFirst(); it.Valid(); it.Next() {
		k := it.Key()
		cp := make([]byte, k.Size())
		copy(cp, k.Data())
		k.Free()
		out = append(out, cp)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
