package cmd

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/crossbill-org/crossbill/util"
)

const (
	genKeysCmdFlag = "gen-keys"

	authorityKeyFileName = "authority.key"
	submitterKeyFileName = "submitter.key"
)

/*
LoadKey reads a hex encoded secp256k1 private key from file. When the file
does not exist and generateNewIfNotExist is set, a fresh key is generated
and saved there first.
*/
func LoadKey(file string, generateNewIfNotExist bool) (*ecdsa.PrivateKey, error) {
	if !util.FileExists(file) {
		if !generateNewIfNotExist {
			return nil, fmt.Errorf("key file %s does not exist (use --%s to generate new keys)", file, genKeysCmdFlag)
		}
		if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil { // -rwx------
			return nil, fmt.Errorf("creating key file directory: %w", err)
		}
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generating key: %w", err)
		}
		if err := crypto.SaveECDSA(file, key); err != nil {
			return nil, fmt.Errorf("saving key to %s: %w", file, err)
		}
		return key, nil
	}

	key, err := crypto.LoadECDSA(file)
	if err != nil {
		return nil, fmt.Errorf("loading key from %s: %w", file, err)
	}
	return key, nil
}
