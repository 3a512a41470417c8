// Package synthetic exchanges tables with an external synthetic-data generator process.
package synthetic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	apperrors "github.com/vitebski/mysql-data-anonymizer/pkg/errors"
	"github.com/vitebski/mysql-data-anonymizer/pkg/models"
)

// DefaultScripts maps generation methods to the generator scripts that implement them
var DefaultScripts = map[string]string{
	"bayesian network": "bayesian_network.py",
	"tgan":             "tgan.py",
	"tvae":             "tvae.py",
	"ctgan":            "ctgan.py",
	"pategan":          "pategan.py",
}

// Config describes one synthetic table to generate
type Config struct {
	Name   string `yaml:"name,omitempty" mapstructure:"name"`
	Method string `yaml:"method" mapstructure:"method"`
	Table  string `yaml:"table" mapstructure:"table"`
	Rows   int    `yaml:"rows,omitempty" mapstructure:"rows"`
	Target string `yaml:"target,omitempty" mapstructure:"target"`
}

// OutputName is the name of the generated table
func (c Config) OutputName() string {
	if strings.TrimSpace(c.Name) != "" {
		return c.Name
	}
	return c.Table + "_synthetic"
}

// RequestConfig is the config object of a request
type RequestConfig struct {
	N      int    `json:"n"`
	Target string `json:"target"`
	Name   string `json:"name"`
}

// Request is written as one JSON line to the generator's standard input. NULL cells are
// sent as JSON null.
type Request struct {
	Method  string        `json:"method"`
	Table   string        `json:"table"`
	Columns []string      `json:"columns"`
	Rows    [][]*string   `json:"rows"`
	Config  RequestConfig `json:"config"`
}

type response struct {
	Status    string          `json:"status"`
	Message   string          `json:"message,omitempty"`
	Error     string          `json:"error,omitempty"`
	DataSynth json.RawMessage `json:"data_synth,omitempty"`
}

// TableSource hands out tables by name
type TableSource interface {
	Table(ctx context.Context, name string) (*models.Table, error)
}

// Bridge runs generator scripts. The exchange blocks until the process exits; cancel ctx to
// bound it.
type Bridge struct {
	Command   string
	ScriptDir string
	Scripts   map[string]string
	Logger    *logrus.Logger
}

// NewBridge creates a bridge with the default script catalog
func NewBridge(command, scriptDir string, logger *logrus.Logger) *Bridge {
	scripts := make(map[string]string, len(DefaultScripts))
	for k, v := range DefaultScripts {
		scripts[k] = v
	}
	return &Bridge{Command: command, ScriptDir: scriptDir, Scripts: scripts, Logger: logger}
}

// Methods lists the configured generation methods
func (b *Bridge) Methods() []string {
	methods := make([]string, 0, len(b.Scripts))
	for m := range b.Scripts {
		methods = append(methods, m)
	}
	return methods
}

func (b *Bridge) script(method string) (string, error) {
	if strings.TrimSpace(method) == "" {
		return "", apperrors.NewConfigurationError("missing_method", "synthesis method is required")
	}
	name, ok := b.Scripts[strings.ToLower(method)]
	if !ok {
		return "", apperrors.NewConfigurationError("unknown_method", "unknown synthesis method %q", method)
	}
	return filepath.Join(b.ScriptDir, name), nil
}

// BuildRequest serializes the visible columns of a table into a request
func BuildRequest(t *models.Table, cfg Config) Request {
	var idx []int
	var columns []string
	for i, c := range t.Columns {
		if !c.Hidden {
			idx = append(idx, i)
			columns = append(columns, c.Name)
		}
	}

	rows := make([][]*string, len(t.Rows))
	for r, row := range t.Rows {
		cells := make([]*string, len(idx))
		for j, i := range idx {
			if row[i] != nil {
				s := models.FormatValue(row[i])
				cells[j] = &s
			}
		}
		rows[r] = cells
	}

	return Request{
		Method:  cfg.Method,
		Table:   t.Name,
		Columns: columns,
		Rows:    rows,
		Config:  RequestConfig{N: cfg.Rows, Target: cfg.Target, Name: cfg.Name},
	}
}

// run starts the generator, writes the request and returns its combined output lines
func (b *Bridge) run(ctx context.Context, script string, req Request, cfg Config) ([]string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	args := []string{script}
	if cfg.Rows > 0 {
		args = append(args, "--n", strconv.Itoa(cfg.Rows))
	}
	if strings.TrimSpace(cfg.Target) != "" {
		args = append(args, "--target", cfg.Target)
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, b.Command, args...)
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	cmd.Stdout = &out
	cmd.Stderr = &out

	b.Logger.WithFields(logrus.Fields{
		"command": b.Command,
		"script":  script,
		"table":   req.Table,
		"rows":    len(req.Rows),
	}).Info("Running synthetic generator")

	runErr := cmd.Run()
	var lines []string
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if runErr != nil {
		b.Logger.Errorf("Error running synthetic generator: %v", runErr)
		return nil, apperrors.NewBridgeError(runErr, strings.Join(lines, "\n"))
	}
	return lines, nil
}

// Generate sends a table to the generator configured for cfg.Method and returns the
// synthetic table it produced
func (b *Bridge) Generate(ctx context.Context, src TableSource, cfg Config) (*models.Table, error) {
	script, err := b.script(cfg.Method)
	if err != nil {
		return nil, err
	}
	t, err := src.Table(ctx, cfg.Table)
	if err != nil {
		return nil, err
	}

	lines, err := b.run(ctx, script, BuildRequest(t, cfg), cfg)
	if err != nil {
		return nil, err
	}
	out, err := ParseOutput(lines, cfg.OutputName())
	if err != nil {
		return nil, apperrors.NewBridgeError(err, strings.Join(lines, "\n"))
	}
	b.Logger.Infof("Generated synthetic table %s with %d rows and %d columns", out.Name, out.RowCount(), len(out.Columns))
	return out, nil
}

// Send hands a table to the generator and returns its status message
func (b *Bridge) Send(ctx context.Context, src TableSource, table, method string) (string, error) {
	script, err := b.script(method)
	if err != nil {
		return "", err
	}
	t, err := src.Table(ctx, table)
	if err != nil {
		return "", err
	}

	lines, err := b.run(ctx, script, BuildRequest(t, Config{Method: method}), Config{})
	if err != nil {
		return "", err
	}
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var resp response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			return line, nil
		}
		if resp.Message != "" {
			return resp.Message, nil
		}
		if resp.Status != "" {
			return resp.Status, nil
		}
		return line, nil
	}
	return "", apperrors.NewBridgeError(apperrors.ErrNoBridgeResponse, "")
}

// ParseOutput scans generator output from the last line backwards for a successful JSON
// response and converts its rows into a table. Columns keep their first-seen order.
func ParseOutput(lines []string, name string) (*models.Table, error) {
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}

		var resp response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			continue
		}
		if !strings.EqualFold(resp.Status, "ok") {
			if resp.Status == "" {
				continue
			}
			msg := resp.Error
			if msg == "" {
				msg = resp.Message
			}
			return nil, fmt.Errorf("generator reported %s: %s", resp.Status, msg)
		}

		header, body, err := decodeRows(resp.DataSynth)
		if err != nil {
			return nil, err
		}
		if len(body) == 0 {
			return nil, fmt.Errorf("generator returned no synthetic rows")
		}
		t, err := models.TableFromRecords(name, header, body)
		if err != nil {
			return nil, err
		}
		t.Source = models.InMemorySnapshot
		return t, nil
	}
	return nil, apperrors.ErrNoBridgeResponse
}

// decodeRows reads an array of JSON objects token by token so that the key order of the
// objects survives. NULL and missing cells become empty strings.
func decodeRows(raw json.RawMessage) ([]string, [][]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := expectDelim(dec, '['); err != nil {
		return nil, nil, err
	}

	var header []string
	position := make(map[string]int)
	var objects []map[string]string

	for dec.More() {
		if err := expectDelim(dec, '{'); err != nil {
			return nil, nil, err
		}
		obj := make(map[string]string)
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil, nil, err
			}
			key, ok := tok.(string)
			if !ok {
				return nil, nil, fmt.Errorf("unexpected token %v in row", tok)
			}
			var value interface{}
			if err := dec.Decode(&value); err != nil {
				return nil, nil, err
			}

			if _, seen := position[key]; !seen {
				position[key] = len(header)
				header = append(header, key)
			}
			obj[key] = cellText(value)
		}
		if err := expectDelim(dec, '}'); err != nil {
			return nil, nil, err
		}
		objects = append(objects, obj)
	}
	if err := expectDelim(dec, ']'); err != nil {
		return nil, nil, err
	}

	body := make([][]string, len(objects))
	for r, obj := range objects {
		rec := make([]string, len(header))
		for key, v := range obj {
			rec[position[key]] = v
		}
		body[r] = rec
	}
	return header, body, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func cellText(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	}
	data, _ := json.Marshal(v)
	return string(data)
}
