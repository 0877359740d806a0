/*
 * Copyright (C) 2021 IBM, Inc.
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

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/omd-tools/check-predicted/pkg/api"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const (
	definitionExt    = ".yaml"
	definitionHeader = "#check-predicted"
)

var defsLog = logrus.WithField("component", "config.Definitions")

// LoadDefinitions reads metric definitions from a yaml file, or from every
// definition file under a directory. Each file must start with the
// definition header line.
func LoadDefinitions(path string) (api.Definitions, error) {
	info, err := os.Stat(path)
	if err != nil {
		return api.Definitions{}, fmt.Errorf("can't access definitions %s: %w", path, err)
	}

	files := []string{path}
	if info.IsDir() {
		if files = getDefinitionFiles(path); len(files) == 0 {
			return api.Definitions{}, fmt.Errorf("no %s definition files under %s", definitionExt, path)
		}
	}

	defs := api.Definitions{}
	for _, fileName := range files {
		parsed, err := parseDefinitionFile(fileName)
		if err != nil {
			return api.Definitions{}, fmt.Errorf("definitions %s: %w", fileName, err)
		}
		mergeDefinitions(&defs, parsed)
	}
	return defs, nil
}

func getDefinitionFiles(rootPath string) []string {
	var files []string
	_ = filepath.Walk(rootPath, func(path string, f os.FileInfo, _ error) error {
		if f == nil {
			return nil
		}
		fMode := f.Mode()
		if fMode.IsRegular() && filepath.Ext(f.Name()) == definitionExt {
			files = append(files, path)
		}
		return nil
	})
	return files
}

func checkHeader(raw []byte) error {
	if len(raw) < len(definitionHeader) || string(raw[:len(definitionHeader)]) != definitionHeader {
		return fmt.Errorf("wrong header, a definition file starts with %s", definitionHeader)
	}
	return nil
}

func parseDefinitionFile(fileName string) (api.Definitions, error) {
	raw, err := os.ReadFile(fileName)
	if err != nil {
		return api.Definitions{}, err
	}
	if err := checkHeader(raw); err != nil {
		return api.Definitions{}, err
	}
	defs := api.Definitions{}
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return api.Definitions{}, fmt.Errorf("can't parse: %w", err)
	}
	defsLog.Debugf("parsed %s, %d metrics", fileName, len(defs.Metrics))
	return defs, nil
}

func mergeDefinitions(dst *api.Definitions, src api.Definitions) {
	if src.Defaults.Consolidation != "" {
		dst.Defaults.Consolidation = src.Defaults.Consolidation
	}
	if src.Defaults.Warn != 0 {
		dst.Defaults.Warn = src.Defaults.Warn
	}
	if src.Defaults.Crit != 0 {
		dst.Defaults.Crit = src.Defaults.Crit
	}
	applySampling(&dst.Sampling, src.Sampling)
	dst.Metrics = append(dst.Metrics, src.Metrics...)
}
