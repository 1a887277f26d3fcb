package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/lachiem1/cashflow/internal/ledger"
)

var csvColumns = []string{"id", "date", "amount", "currency", "category", "account"}

// CSVFile reads a header-prefixed CSV with the columns
// id,date,amount,currency,category,account. Only date, amount and category
// are required.
type CSVFile struct {
	Path            string
	DefaultCurrency string
	Separator       string
}

func (s CSVFile) Name() string {
	return "file:" + filepath.Base(s.Path)
}

func (s CSVFile) Load(ctx context.Context) ([]ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	defer f.Close()

	sep := s.Separator
	if sep == "" {
		sep = ledger.MoneyMoneySeparator
	}
	return decodeCSV(f, s.Name(), sep, s.DefaultCurrency)
}

func decodeCSV(r io.Reader, source, separator, defaultCurrency string) ([]ledger.Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []ledger.Transaction{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	for _, required := range []string{"date", "amount", "category"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("csv header misses column %q (want %s)", required, strings.Join(csvColumns, ","))
		}
	}

	field := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := []ledger.Transaction{}
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}

		amount, err := parseAmount(field(row, "amount"))
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		date, err := parseDate(field(row, "date"))
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		id := field(row, "id")
		if id == "" {
			id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(source+"#"+strconv.Itoa(line))).String()
		}
		out = append(out, ledger.Transaction{
			ID:       id,
			Date:     date,
			Amount:   amount,
			Currency: normalizeCurrency(field(row, "currency"), defaultCurrency),
			Category: normalizeCategory(field(row, "category"), separator),
			Account:  field(row, "account"),
		})
	}
	return out, nil
}

// SourceForPath picks a file source from the file extension.
func SourceForPath(path, defaultCurrency string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return MoneyMoneyFile{Path: path, DefaultCurrency: defaultCurrency}, nil
	case ".csv":
		return CSVFile{Path: path, DefaultCurrency: defaultCurrency}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, path)
	}
}
