package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"trendEnvelopeBot/internal/domain"
)

var klineHeader = []string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume", "final"}

// WriteKlinesCSV writes klines as CSV rows to w, header first.
func WriteKlinesCSV(w io.Writer, klines []*domain.Kline) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(klineHeader); err != nil {
		return err
	}
	for _, k := range klines {
		if err := writer.Write([]string{
			k.OpenTime.UTC().Format(time.RFC3339),
			k.CloseTime.UTC().Format(time.RFC3339),
			k.Symbol,
			k.Interval,
			strconv.FormatFloat(k.Open, 'f', -1, 64),
			strconv.FormatFloat(k.High, 'f', -1, 64),
			strconv.FormatFloat(k.Low, 'f', -1, 64),
			strconv.FormatFloat(k.Close, 'f', -1, 64),
			strconv.FormatFloat(k.Volume, 'f', -1, 64),
			strconv.FormatBool(k.IsFinal),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteKlinesToCSV writes klines to filename, creating parent directories.
func WriteKlinesToCSV(klines []*domain.Kline, filename string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteKlinesCSV(file, klines); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
