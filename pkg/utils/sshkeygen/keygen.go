package sshkeygen

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// KeyPair describes the files of a generated or existing Ed25519 key.
type KeyPair struct {
	PrivateKeyPath string
	PublicKeyPath  string
	AuthorizedKey  string
	Created        bool
}

// EnsureEd25519KeyPair writes privateKeyPath and privateKeyPath+".pub" unless the
// private key already exists, in which case its public half is returned.
func EnsureEd25519KeyPair(privateKeyPath, comment string) (*KeyPair, error) {
	pair := &KeyPair{
		PrivateKeyPath: privateKeyPath,
		PublicKeyPath:  privateKeyPath + ".pub",
	}

	if existing, err := os.ReadFile(privateKeyPath); err == nil {
		signer, err := ssh.ParsePrivateKey(existing)
		if err != nil {
			return nil, fmt.Errorf("existing key %s is unreadable: %w", privateKeyPath, err)
		}
		pair.AuthorizedKey = authorizedKey(signer.PublicKey(), comment)
		return pair, nil
	}

	if err := os.MkdirAll(filepath.Dir(privateKeyPath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(privKey, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := os.WriteFile(privateKeyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}

	sshPubKey, err := ssh.NewPublicKey(pubKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create public key: %w", err)
	}
	pair.AuthorizedKey = authorizedKey(sshPubKey, comment)
	if err := os.WriteFile(pair.PublicKeyPath, []byte(pair.AuthorizedKey+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write public key: %w", err)
	}

	pair.Created = true
	return pair, nil
}

func authorizedKey(key ssh.PublicKey, comment string) string {
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(key)))
	if comment != "" {
		line += " " + comment
	}
	return line
}
