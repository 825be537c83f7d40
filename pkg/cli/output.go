package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

type OutputFormat string

const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

type OutputOptions struct {
	Format OutputFormat
	Quiet  bool
	Writer io.Writer
}

func NewOutputOptions() *OutputOptions {
	return &OutputOptions{
		Format: OutputTable,
		Quiet:  false,
		Writer: os.Stdout,
	}
}

// Print renders data in the selected format. Quiet suppresses everything.
func (o *OutputOptions) Print(data any) error {
	if o.Quiet {
		return nil
	}
	s, err := FormatOutput(data, o.Format)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(o.Writer, s)
	return err
}

// Printf writes a plain line regardless of format, honoring Quiet.
func (o *OutputOptions) Printf(format string, args ...any) {
	if o.Quiet {
		return
	}
	fmt.Fprintf(o.Writer, format+"\n", args...)
}

func FormatOutput(data any, format OutputFormat) (string, error) {
	switch format {
	case OutputJSON:
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal JSON: %w", err)
		}
		return string(b), nil
	case OutputYAML:
		b, err := yaml.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("marshal YAML: %w", err)
		}
		return strings.TrimRight(string(b), "\n"), nil
	default:
		return formatTable(data)
	}
}

func formatTable(data any) (string, error) {
	if data == nil {
		return "", nil
	}

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "", nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return formatSliceTable(v)
	case reflect.Struct:
		return formatStructTable(v)
	default:
		return fmt.Sprintf("%v", data), nil
	}
}

func formatSliceTable(v reflect.Value) (string, error) {
	if v.Len() == 0 {
		return "No items", nil
	}

	elem := v.Index(0)
	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		var sb strings.Builder
		for i := 0; i < v.Len(); i++ {
			fmt.Fprintf(&sb, "%v\n", v.Index(i).Interface())
		}
		return strings.TrimRight(sb.String(), "\n"), nil
	}

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	cols := tableColumns(elem.Type())
	fmt.Fprintln(w, strings.Join(cols.headers, "\t"))
	for i := 0; i < v.Len(); i++ {
		row := v.Index(i)
		if row.Kind() == reflect.Ptr {
			row = row.Elem()
		}
		cells := make([]string, 0, len(cols.indexes))
		for _, fi := range cols.indexes {
			cells = append(cells, fmt.Sprintf("%v", row.Field(fi).Interface()))
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	return strings.TrimRight(sb.String(), "\n"), nil
}

func formatStructTable(v reflect.Value) (string, error) {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	cols := tableColumns(v.Type())
	for i, fi := range cols.indexes {
		fmt.Fprintf(w, "%s:\t%v\n", cols.headers[i], v.Field(fi).Interface())
	}
	w.Flush()
	return strings.TrimRight(sb.String(), "\n"), nil
}

type columns struct {
	headers []string
	indexes []int
}

func tableColumns(t reflect.Type) columns {
	var c columns
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag := f.Tag.Get("json"); tag != "" && tag != "-" {
			name = strings.Split(tag, ",")[0]
		}
		c.headers = append(c.headers, strings.ToUpper(name))
		c.indexes = append(c.indexes, i)
	}
	return c
}
