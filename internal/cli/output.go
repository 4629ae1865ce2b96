package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaiso/keygen/internal/domain"
	"github.com/shaiso/keygen/internal/repo"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output в stdout/stderr. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с произвольными writer'ами.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{jsonMode: jsonMode, w: w, errW: errW}
}

// RequestIDs выводит requestId опубликованных запросов.
func (o *Output) RequestIDs(ids []string) {
	if o.jsonMode {
		o.json(map[string]any{"requestIds": ids})
		return
	}
	for _, id := range ids {
		fmt.Fprintln(o.w, id)
	}
}

// Keys выводит сгенерированные ключи.
func (o *Output) Keys(keys []domain.GeneratedKey) {
	if o.jsonMode {
		if keys == nil {
			keys = []domain.GeneratedKey{}
		}
		o.json(keys)
		return
	}

	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k.RequestIDString(), k.Key, k.GeneratedAt.Format(time.RFC3339)}
	}
	o.table([]string{"REQUEST_ID", "KEY", "GENERATED_AT"}, rows)
}

// Journal выводит записи журнала ключей.
func (o *Output) Journal(records []repo.KeyRecord) {
	if o.jsonMode {
		if records == nil {
			records = []repo.KeyRecord{}
		}
		o.json(records)
		return
	}

	rows := make([][]string, len(records))
	for i, r := range records {
		rows[i] = []string{r.Key, r.RequestID, r.GeneratedAt.Format(time.RFC3339), r.RecordedAt.Format(time.RFC3339)}
	}
	o.table([]string{"KEY", "REQUEST_ID", "GENERATED_AT", "RECORDED_AT"}, rows)
}

// Info выводит сообщение в stderr.
func (o *Output) Info(format string, args ...any) {
	fmt.Fprintf(o.errW, format+"\n", args...)
}

// table выводит данные в виде таблицы через tabwriter.
func (o *Output) table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// json выводит данные в формате JSON с отступами.
func (o *Output) json(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// decodeGeneratedKey разбирает тело ответа worker'а.
func decodeGeneratedKey(body []byte) (*domain.GeneratedKey, error) {
	var key domain.GeneratedKey
	if err := json.Unmarshal(body, &key); err != nil {
		return nil, fmt.Errorf("decode generated key: %w", err)
	}
	if key.Key == "" {
		return nil, fmt.Errorf("decode generated key: empty key")
	}
	return &key, nil
}
