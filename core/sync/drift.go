package sync

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadDrift reads a frequency correction in ppm from a drift file.
func LoadDrift(name string) (float64, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
}

// SaveDrift atomically replaces the drift file with ppm.
func SaveDrift(name string, ppm float64) error {
	f, err := os.CreateTemp(filepath.Dir(name), filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	_, err = f.WriteString(strconv.FormatFloat(ppm, 'f', 3, 64) + "\n")
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(f.Name(), name)
	}
	if err != nil {
		_ = os.Remove(f.Name())
	}
	return err
}
