// Copyright 2025 lowrank Project Authors
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
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// SaveCSV writes the dataset as comma separated triples. The first line
// carries the matrix shape.
func (d *Dataset) SaveCSV(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Trace(err)
	}
	defer file.Close()
	writer := bufio.NewWriter(file)
	defer writer.Flush()
	if _, err = fmt.Fprintf(writer, "%v,%v\n", d.numRows, d.numCols); err != nil {
		return errors.Trace(err)
	}
	for _, o := range d.observations {
		if _, err = fmt.Fprintf(writer, "%v,%v,%v\n", o.Row, o.Col, o.Value); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// LoadCSV reads a dataset written by SaveCSV.
func LoadCSV(path string) (*Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return nil, errors.NotValidf("empty file %v", path)
	}
	shape := strings.Split(scanner.Text(), ",")
	if len(shape) != 2 {
		return nil, errors.NotValidf("header %v", scanner.Text())
	}
	numRows, err := strconv.Atoi(shape[0])
	if err != nil {
		return nil, errors.Trace(err)
	}
	numCols, err := strconv.Atoi(shape[1])
	if err != nil {
		return nil, errors.Trace(err)
	}
	data, err := NewDataset(numRows, numCols)
	if err != nil {
		return nil, errors.Trace(err)
	}
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ",")
		if len(fields) != 3 {
			return nil, errors.NotValidf("line %v", scanner.Text())
		}
		row, err := strconv.ParseInt(fields[0], 10, 32)
		if err != nil {
			return nil, errors.Trace(err)
		}
		col, err := strconv.ParseInt(fields[1], 10, 32)
		if err != nil {
			return nil, errors.Trace(err)
		}
		value, err := strconv.ParseFloat(fields[2], 32)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if err = data.Add(int32(row), int32(col), float32(value)); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return data, errors.Trace(scanner.Err())
}
