// Package keyvault derives a machine-bound master key and uses it to
// protect an Ed25519 signing keypair at rest, caching the decrypted key
// behind a single-flight guard so concurrent loads only hit disk once.
package keyvault

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/sync/singleflight"

	"github.com/signet-ai/signet/internal/did"
	"github.com/signet-ai/signet/internal/signeterr"
)

const masterKeyDomain = "signet:secrets:"

// currentKDFVersion is the KDF generation written into newly created
// keypair files. A future v2 may substitute a passphrase-derived KDF; the
// file records which version produced it so load() can pick the right path.
const currentKDFVersion = 1

// keyFile is the on-disk JSON layout of the encrypted keypair.
type keyFile struct {
	PublicKey           string `json:"public_key"`
	EncryptedPrivateKey string `json:"encrypted_private_key"`
	Created             string `json:"created"`
	KDFVersion          int    `json:"kdf_version,omitempty"`
}

// Vault manages a single signing keypair's lifecycle at a fixed path.
type Vault struct {
	path string

	mu     sync.Mutex
	pub    ed25519.PublicKey
	priv   ed25519.PrivateKey
	loaded bool

	group singleflight.Group
}

// New returns a Vault rooted at path (typically "<home>/.keys/signing.enc").
func New(path string) *Vault {
	return &Vault{path: path}
}

// Generate creates a new Ed25519 keypair and writes it encrypted to the
// vault's path. Fails if a keypair already exists there.
func (v *Vault) Generate() (ed25519.PublicKey, error) {
	if _, err := os.Stat(v.path); err == nil {
		return nil, signeterr.New(signeterr.Corrupted, "keyvault: key file already exists")
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keyvault: generate key: %w", err)
	}

	if err := v.write(pub, priv, currentKDFVersion); err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.pub, v.priv, v.loaded = pub, priv, true
	v.mu.Unlock()

	return pub, nil
}

// Load decrypts and returns the keypair, caching it for subsequent calls.
// Concurrent callers share a single in-flight disk read and decrypt via a
// singleflight group; on error the group entry is not reused, so the next
// caller retries from scratch.
func (v *Vault) Load() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	v.mu.Lock()
	if v.loaded {
		pub, priv := v.pub, v.priv
		v.mu.Unlock()
		return pub, priv, nil
	}
	v.mu.Unlock()

	result, err, _ := v.group.Do("load", func() (any, error) {
		pub, priv, err := v.loadFromDisk()
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.pub, v.priv, v.loaded = pub, priv, true
		v.mu.Unlock()
		return [2]any{pub, priv}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	pair := result.([2]any)
	return pair[0].(ed25519.PublicKey), pair[1].(ed25519.PrivateKey), nil
}

func (v *Vault) loadFromDisk() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, signeterr.New(signeterr.KeyNotFound, "keyvault: no key file at "+v.path)
		}
		return nil, nil, fmt.Errorf("keyvault: read key file: %w", err)
	}

	var kf keyFile
	if err := json.Unmarshal(raw, &kf); err != nil {
		return nil, nil, signeterr.Wrap(signeterr.Corrupted, err)
	}

	pub, err := base64.StdEncoding.DecodeString(kf.PublicKey)
	if err != nil {
		return nil, nil, signeterr.Wrap(signeterr.Corrupted, err)
	}

	encrypted, err := base64.StdEncoding.DecodeString(kf.EncryptedPrivateKey)
	if err != nil {
		return nil, nil, signeterr.Wrap(signeterr.Corrupted, err)
	}

	master, err := masterKey()
	if err != nil {
		return nil, nil, err
	}

	priv, err := decrypt(master, encrypted)
	if err != nil {
		return nil, nil, signeterr.New(signeterr.KeyMismatch, "keyvault: decryption failed, wrong machine or tampered file")
	}
	if len(priv) != ed25519.PrivateKeySize {
		return nil, nil, signeterr.New(signeterr.Corrupted, "keyvault: decrypted private key has wrong length")
	}

	derivedPub := ed25519.PrivateKey(priv).Public().(ed25519.PublicKey)
	if !bytes.Equal(derivedPub, pub) {
		return nil, nil, signeterr.New(signeterr.Corrupted, "keyvault: public key does not match private key")
	}

	return ed25519.PublicKey(pub), ed25519.PrivateKey(priv), nil
}

// Clear zeros the cached key material and drops the in-memory cache. A
// subsequent Load re-reads and re-decrypts from disk.
func (v *Vault) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.priv {
		v.priv[i] = 0
	}
	v.pub = nil
	v.priv = nil
	v.loaded = false
}

// ReEncrypt rewrites the key file under a new KDF version, atomically.
func (v *Vault) ReEncrypt(newKDFVersion int) error {
	pub, priv, err := v.Load()
	if err != nil {
		return err
	}
	return v.write(pub, priv, newKDFVersion)
}

func (v *Vault) write(pub ed25519.PublicKey, priv ed25519.PrivateKey, kdfVersion int) error {
	if err := os.MkdirAll(filepath.Dir(v.path), 0o700); err != nil {
		return fmt.Errorf("keyvault: create key directory: %w", err)
	}

	master, err := masterKey()
	if err != nil {
		return err
	}

	encrypted, err := encrypt(master, priv)
	if err != nil {
		return fmt.Errorf("keyvault: encrypt private key: %w", err)
	}

	kf := keyFile{
		PublicKey:           base64.StdEncoding.EncodeToString(pub),
		EncryptedPrivateKey: base64.StdEncoding.EncodeToString(encrypted),
		Created:             time.Now().UTC().Format(time.RFC3339Nano),
		KDFVersion:          kdfVersion,
	}
	body, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("keyvault: marshal key file: %w", err)
	}

	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return fmt.Errorf("keyvault: write temp key file: %w", err)
	}
	if err := os.Rename(tmp, v.path); err != nil {
		return fmt.Errorf("keyvault: rename key file into place: %w", err)
	}
	return nil
}

// DID returns the did:key identifier for the vault's public key, loading
// the keypair if necessary.
func (v *Vault) DID() (string, error) {
	pub, _, err := v.Load()
	if err != nil {
		return "", err
	}
	return did.FromPublicKey(pub)
}

func masterKey() ([32]byte, error) {
	machineID, err := machineID()
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256([]byte(masterKeyDomain + machineID)), nil
}

// machineID resolves a stable, non-secret identifier for this host:
// /etc/machine-id, then /var/lib/dbus/machine-id, then
// "hostname+username+GOOS".
func machineID() (string, error) {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if b, err := os.ReadFile(path); err == nil {
			return string(bytes.TrimSpace(b)), nil
		}
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	if user == "" {
		user = "unknown-user"
	}
	return fmt.Sprintf("%s+%s+%s", host, user, runtime.GOOS), nil
}

func encrypt(key [32]byte, plaintext []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &key), nil
}

func decrypt(key [32]byte, data []byte) ([]byte, error) {
	if len(data) < 24 {
		return nil, fmt.Errorf("keyvault: ciphertext too short")
	}
	var nonce [24]byte
	copy(nonce[:], data[:24])
	out, ok := secretbox.Open(nil, data[24:], &nonce, &key)
	if !ok {
		return nil, fmt.Errorf("keyvault: secretbox open failed")
	}
	return out, nil
}
