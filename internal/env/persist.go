package env

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Persist updates key in the process environment and writes it back to
// PersistPath. It returns the file path that was written.
func Persist(key, value string) (string, error) {
	path := PersistPath()
	if err := PersistTo(path, key, value); err != nil {
		return "", err
	}
	return path, nil
}

// PersistTo rewrites the dotenv file at path with key=value, keeping the other
// entries, and applies the value to the running process.
func PersistTo(path, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("env: empty key")
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		values = map[string]string{}
	}
	values[key] = value
	if err := godotenv.Write(values, path); err != nil {
		return err
	}
	return os.Setenv(key, value)
}
