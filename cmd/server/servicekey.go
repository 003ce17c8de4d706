package main

import (
	"fmt"
	"io"

	"batisecure/pkg/secrets"
)

// genServiceKey prints a fresh service key and its bcrypt hash. The key goes
// to the scheduler; only the hash is stored in BATISECURE_SERVICE_KEY_HASH.
func genServiceKey(w io.Writer) error {
	key, err := secrets.Generate()
	if err != nil {
		return err
	}
	hash, err := secrets.Hash(key)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "service key:  %s\n", key)
	fmt.Fprintf(w, "bcrypt hash:  %s\n", hash)
	return nil
}
