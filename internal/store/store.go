// Package store is the per-user on-disk record: load, save, quality-aware merge, and
// averaged-embedding recompute. Records are encrypted at rest with NaCl secretbox, keyed
// from machine-specific identity, on top of the atomic-write/mode-0600 file discipline.
package store

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adam-mcguinness/sup-linux/internal/apperror"
	"github.com/adam-mcguinness/sup-linux/internal/logging"
	"github.com/adam-mcguinness/sup-linux/internal/model"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize = 24
	keySize   = 32
)

// ErrNotFound is returned by Load when no record exists for the username.
var ErrNotFound = errors.New("store: user not enrolled")

// FileStore implements the per-user record store described in §4.2.
type FileStore struct {
	dataDir       string
	enrollmentDir string
	key           [keySize]byte
}

// New builds a FileStore rooted at dataDir (for `<dataDir>/users/<username>.bin`) and
// enrollmentDir (for `<enrollmentDir>/<username>/...jpg`), deriving the at-rest encryption
// key from this machine's identity.
func New(dataDir, enrollmentDir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, "users"), 0700); err != nil {
		return nil, apperror.New(apperror.CodeStorage, err)
	}
	if err := os.MkdirAll(enrollmentDir, 0700); err != nil {
		return nil, apperror.New(apperror.CodeStorage, err)
	}
	fs := &FileStore{dataDir: dataDir, enrollmentDir: enrollmentDir}
	key, err := deriveKey()
	if err != nil {
		return nil, apperror.New(apperror.CodeStorage, err)
	}
	fs.key = key
	return fs, nil
}

func deriveKey() ([keySize]byte, error) {
	var key [keySize]byte
	var identity strings.Builder

	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		identity.Write(machineID)
	}
	if hostname, err := os.Hostname(); err == nil {
		identity.WriteString(hostname)
	}
	identity.WriteString(fmt.Sprintf("%d", os.Getuid()))
	identity.WriteString("sup-linux-v1-salt")

	hash := sha256.Sum256([]byte(identity.String()))
	copy(key[:], hash[:])
	return key, nil
}

func (fs *FileStore) userPath(username string) string {
	return filepath.Join(fs.dataDir, "users", username+".bin")
}

// EnrollmentDir creates and returns `<enrollment_base>/<username>`.
func (fs *FileStore) EnrollmentDir(username string) (string, error) {
	dir := filepath.Join(fs.enrollmentDir, username)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", apperror.New(apperror.CodeStorage, err)
	}
	return dir, nil
}

// Load reads `<data_dir>/users/<username>.bin`, decrypts it, and decodes the UserRecord.
// Returns ErrNotFound if no record exists.
func (fs *FileStore) Load(username string) (model.UserRecord, error) {
	path := fs.userPath(username)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.UserRecord{}, ErrNotFound
		}
		return model.UserRecord{}, apperror.New(apperror.CodeStorage, err)
	}

	plain, err := fs.decrypt(raw)
	if err != nil {
		return model.UserRecord{}, apperror.New(apperror.CodeStorage, err)
	}

	rec, err := deserialize(plain)
	if err != nil {
		return model.UserRecord{}, apperror.New(apperror.CodeStorage, err)
	}
	return rec, nil
}

// Save writes record atomically (write-to-temp + rename) with mode 0600.
func (fs *FileStore) Save(record model.UserRecord) error {
	path := fs.userPath(record.Username)
	plain := serialize(record)
	cipher, err := fs.encrypt(plain)
	if err != nil {
		return apperror.New(apperror.CodeStorage, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return apperror.New(apperror.CodeStorage, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(cipher); err != nil {
		tmp.Close()
		return apperror.New(apperror.CodeStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return apperror.New(apperror.CodeStorage, err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		return apperror.New(apperror.CodeStorage, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return apperror.New(apperror.CodeStorage, err)
	}

	logging.Component("store").WithField("username", record.Username).Debug("saved user record")
	return nil
}

// Merge applies new embeddings/qualities onto existing per the replace-weak policy and
// recomputes the averaged embedding. Returns the number added (appended) and replaced
// (overwrote a weaker existing slot).
func Merge(existing model.UserRecord, newEmbeddings []model.Embedding, newQualities []float32, replaceWeak bool) (result model.UserRecord, added, replaced int) {
	result = existing
	result.Embeddings = append([]model.Embedding(nil), existing.Embeddings...)
	if existing.Qualities != nil {
		result.Qualities = append([]float32(nil), existing.Qualities...)
	}

	if !replaceWeak || existing.Qualities == nil {
		result.Embeddings = append(result.Embeddings, newEmbeddings...)
		if newQualities != nil {
			if result.Qualities == nil {
				result.Qualities = make([]float32, len(existing.Embeddings))
			}
			result.Qualities = append(result.Qualities, newQualities...)
		}
		added = len(newEmbeddings)
		result.Recompute()
		return result, added, 0
	}

	// Repeatedly select the weakest existing slot; replace it if the next unassigned new
	// sample's quality exceeds it, otherwise append the remainder.
	consumed := make([]bool, len(newEmbeddings))
	for i := range newEmbeddings {
		if consumed[i] {
			continue
		}
		weakestIdx := weakestSlot(result.Qualities)
		if weakestIdx < 0 {
			break
		}
		if newQualities[i] > result.Qualities[weakestIdx] {
			result.Embeddings[weakestIdx] = newEmbeddings[i]
			result.Qualities[weakestIdx] = newQualities[i]
			consumed[i] = true
			replaced++
		}
	}
	for i := range newEmbeddings {
		if !consumed[i] {
			result.Embeddings = append(result.Embeddings, newEmbeddings[i])
			result.Qualities = append(result.Qualities, newQualities[i])
			added++
		}
	}

	result.Recompute()
	return result, added, replaced
}

func weakestSlot(qualities []float32) int {
	if len(qualities) == 0 {
		return -1
	}
	idx := 0
	for i, q := range qualities {
		if q < qualities[idx] {
			idx = i
		}
	}
	return idx
}

// SortedQualities returns a copy of qualities sorted descending, the form in which the
// top-N retained multiset (invariant 4) can be compared.
func SortedQualities(qualities []float32) []float32 {
	out := append([]float32(nil), qualities...)
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

func (fs *FileStore) encrypt(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &fs.key), nil
}

func (fs *FileStore) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("store: ciphertext shorter than nonce")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[:nonceSize])
	plaintext, ok := secretbox.Open(nil, ciphertext[nonceSize:], &nonce, &fs.key)
	if !ok {
		return nil, fmt.Errorf("store: decryption failed (wrong key or corrupted record)")
	}
	return plaintext, nil
}
