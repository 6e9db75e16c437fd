// Package feed loads candle data from CSV files.
package feed

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"

	apperrors "chartdrill/internal/errors"
	"chartdrill/internal/models"
)

const dataType = "candles"

// LoadFile reads candles from a CSV file with a
// time,open,high,low,close,volume header.
func LoadFile(path string) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	return Read(f, SymbolFromPath(path))
}

// Read decodes candles from r. Every row must satisfy the OHLC invariants
// and times must be strictly ascending. The first bad row is reported as a
// *errors.DataError wrapping ErrMalformedCandle; a file without rows wraps
// ErrInsufficientData.
func Read(r io.Reader, symbol string) ([]models.Candle, error) {
	var candles []models.Candle
	if err := gocsv.Unmarshal(r, &candles); err != nil {
		return nil, apperrors.NewDataError(dataType, symbol, "decode csv", fmt.Errorf("%w: %v", apperrors.ErrMalformedCandle, err))
	}
	if len(candles) == 0 {
		return nil, apperrors.NewDataError(dataType, symbol, "no rows", apperrors.ErrInsufficientData)
	}

	if err := Validate(candles, symbol); err != nil {
		return nil, err
	}
	return candles, nil
}

// Validate checks every candle and the ordering of their times.
func Validate(candles []models.Candle, symbol string) error {
	for i, c := range candles {
		// header is line 1
		line := i + 2
		if err := c.Validate(); err != nil {
			return apperrors.NewDataError(dataType, symbol, fmt.Sprintf("line %d", line),
				fmt.Errorf("%w: %v", apperrors.ErrMalformedCandle, err))
		}
		if i > 0 && c.Time <= candles[i-1].Time {
			return apperrors.NewDataError(dataType, symbol, fmt.Sprintf("line %d", line),
				fmt.Errorf("%w: time %d not after %d", apperrors.ErrMalformedCandle, c.Time, candles[i-1].Time))
		}
	}
	return nil
}

// SymbolFromPath derives a symbol label from a file name, e.g.
// data/BTCUSD.csv gives BTCUSD.
func SymbolFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
