// Copyright 2024 cfit Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"

	"github.com/juju/errors"
)

// ReadCSV loads a matrix from a CSV file. The first line holds gene names.
// When hasRowNames is true the first column holds sample identifiers and the
// first header field is ignored.
func ReadCSV(path string, hasRowNames bool) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer f.Close()
	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(records) < 2 {
		return nil, errors.Errorf("%s: need a header line and at least one row", path)
	}
	header := records[0]
	offset := 0
	if hasRowNames {
		offset = 1
	}
	genes := header[offset:]
	values := make([][]float32, 0, len(records)-1)
	var rows []string
	if hasRowNames {
		rows = make([]string, 0, len(records)-1)
	}
	for _, record := range records[1:] {
		if len(record) != len(genes)+offset {
			return nil, errors.Errorf("%s: row has %d fields, want %d", path, len(record), len(genes)+offset)
		}
		if hasRowNames {
			rows = append(rows, record[0])
		}
		row := make([]float32, len(genes))
		for i, field := range record[offset:] {
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, errors.Trace(err)
			}
			row[i] = float32(v)
		}
		values = append(values, row)
	}
	return NewMatrix(values, rows, genes)
}

// WriteCSV writes a matrix to a CSV file in the layout ReadCSV expects.
func WriteCSV(path string, m *Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer f.Close()
	return writeCSV(f, m)
}

func writeCSV(w io.Writer, m *Matrix) error {
	writer := csv.NewWriter(w)
	hasRowNames := m.Rows != nil
	header := m.Genes
	if hasRowNames {
		header = append([]string{""}, m.Genes...)
	}
	if err := writer.Write(header); err != nil {
		return errors.Trace(err)
	}
	record := make([]string, 0, len(header))
	for i, row := range m.Values {
		record = record[:0]
		if hasRowNames {
			record = append(record, m.Rows[i])
		}
		for _, v := range row {
			record = append(record, strconv.FormatFloat(float64(v), 'g', -1, 32))
		}
		if err := writer.Write(record); err != nil {
			return errors.Trace(err)
		}
	}
	writer.Flush()
	return errors.Trace(writer.Error())
}
