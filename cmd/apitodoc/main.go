/*
 * Copyright (C) 2022 IBM, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package main

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/omd-tools/check-predicted/pkg/api"
)

// iterate renders the doc tags of the api structs as markdown. Nesting
// follows the struct nesting, four spaces per level.
func iterate(output io.Writer, data interface{}, indent int) {
	d := reflect.ValueOf(data)
	pad := strings.Repeat(" ", 4*(indent+1))
	switch d.Kind() {
	case reflect.Slice, reflect.Map:
		zero := reflect.Zero(d.Type().Elem()).Interface()
		iterate(output, zero, indent+1)
	case reflect.Ptr:
		// a pointer field documents like the struct it points at
		zero := reflect.Zero(d.Type().Elem()).Interface()
		iterate(output, zero, indent)
	case reflect.Struct:
		for i := 0; i < d.NumField(); i++ {
			field := d.Type().Field(i)
			name := strings.ReplaceAll(field.Tag.Get(api.TagYaml), ",omitempty", "")
			doc := field.Tag.Get(api.TagDoc)

			if enumTag := field.Tag.Get(api.TagEnum); enumTag != "" {
				zero := reflect.Zero(api.GetEnumReflectionTypeByFieldName(enumTag)).Interface()
				fmt.Fprintf(output, "%s %s: (enum) %s\n", pad, name, doc)
				iterate(output, zero, indent+1)
				continue
			}
			if doc == "" {
				continue
			}
			if strings.HasPrefix(doc, "#") {
				fmt.Fprintf(output, "\n%s\n", doc)
				fmt.Fprintf(output, "<pre>")
				fmt.Fprintf(output, "\n%s %s:\n", strings.Repeat(" ", 4*indent), name)
				iterate(output, d.Field(i).Interface(), indent+1)
				fmt.Fprintf(output, "</pre>")
			} else {
				fmt.Fprintf(output, "%s %s: %s\n", pad, name, doc)
				iterate(output, d.Field(i).Interface(), indent+1)
			}
		}
	}
}

func main() {
	output := new(bytes.Buffer)
	fmt.Fprintf(output, "# Definition files\n")
	fmt.Fprintf(output, "\nA definition file is YAML, starts with the line `#check-predicted` and\nholds the sections below.\n")
	iterate(output, api.API{}, 0)
	fmt.Print(output)
}
