package domain

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"formulaevo/internal/model"
)

// CSVProvider reads one `<domain>.csv` per domain from Dir. The header row
// must start with `name,outcome`; every further column is a feature.
type CSVProvider struct {
	Dir string
}

func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{Dir: dir}
}

func (p *CSVProvider) Load(ctx context.Context, domainID string, sampleLimit int) ([]model.DomainEntity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if domainID == "" || strings.ContainsAny(domainID, `/\`) || domainID == "." || domainID == ".." {
		return nil, fmt.Errorf("invalid domain id %q", domainID)
	}
	path := filepath.Join(p.Dir, domainID+".csv")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDomainNotFound, domainID)
		}
		return nil, fmt.Errorf("open domain csv %s: %w", path, err)
	}
	defer f.Close()
	return readEntities(ctx, f, domainID, sampleLimit)
}

// Domains lists the domain ids available in Dir.
func (p *CSVProvider) Domains() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(p.Dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(filepath.Base(m), ".csv"))
	}
	sort.Strings(out)
	return out, nil
}

func readEntities(ctx context.Context, r io.Reader, domainID string, sampleLimit int) ([]model.DomainEntity, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s csv header: %w", domainID, err)
	}
	if len(header) < 3 || !strings.EqualFold(header[0], "name") || !strings.EqualFold(header[1], "outcome") {
		return nil, fmt.Errorf("%s csv header must start with name,outcome and list at least one feature", domainID)
	}
	featureNames := make([]string, len(header)-2)
	for i, h := range header[2:] {
		featureNames[i] = strings.TrimSpace(h)
	}

	entities := make([]model.DomainEntity, 0, 64)
	row := 1
	for sampleLimit <= 0 || len(entities) < sampleLimit {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("read %s csv row %d: %w", domainID, row, err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("%s csv row %d: expected %d fields, got %d", domainID, row, len(header), len(record))
		}

		outcome, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s csv outcome row %d: %w", domainID, row, err)
		}
		features := make(model.Features, len(featureNames))
		for i, name := range featureNames {
			field := strings.TrimSpace(record[i+2])
			if field == "" {
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("parse %s csv feature %s row %d: %w", domainID, name, row, err)
			}
			features[name] = v
		}
		entities = append(entities, model.DomainEntity{
			Name:     record[0],
			Features: features,
			Outcome:  outcome,
			DomainID: domainID,
		})
	}
	return entities, nil
}

// WriteCSV writes entities in the layout CSVProvider reads. Feature columns
// are the sorted union of all feature keys.
func WriteCSV(w io.Writer, entities []model.DomainEntity) error {
	keys := map[string]struct{}{}
	for _, e := range entities {
		for k := range e.Features {
			keys[k] = struct{}{}
		}
	}
	featureNames := make([]string, 0, len(keys))
	for k := range keys {
		featureNames = append(featureNames, k)
	}
	sort.Strings(featureNames)

	writer := csv.NewWriter(w)
	if err := writer.Write(append([]string{"name", "outcome"}, featureNames...)); err != nil {
		return err
	}
	for _, e := range entities {
		record := make([]string, 0, len(featureNames)+2)
		record = append(record, e.Name, strconv.FormatFloat(e.Outcome, 'g', -1, 64))
		for _, k := range featureNames {
			v, ok := e.Features[k]
			if !ok {
				record = append(record, "")
				continue
			}
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
