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

// Package perfdata reads the pnp4nagios metadata files that map a service's
// logical metric names to the rrd files and datasource indexes holding them.
package perfdata

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var pdLog = logrus.WithField("component", "perfdata.Service")

// Datasource describes one physical series of a service.
type Datasource struct {
	Index int    `xml:"DS"`
	Name  string `xml:"NAME"`
	Label string `xml:"LABEL"`
	Unit  string `xml:"UNIT"`
	File  string `xml:"RRDFILE"`
}

// Service is the parsed metadata of one (host, service) pair. Datasources
// keep their document order.
type Service struct {
	XMLName     xml.Name     `xml:"NAGIOS"`
	Datasources []Datasource `xml:"DATASOURCE"`
}

// Path returns the metadata file location for a host and service under the
// perfdata directory. pnp4nagios stores spaces in service names as
// underscores.
func Path(dir, host, service string) string {
	return filepath.Join(dir, host, strings.ReplaceAll(service, " ", "_")+".xml")
}

// Load reads and parses the metadata of the given host and service.
func Load(dir, host, service string) (*Service, error) {
	fileName := Path(dir, host, service)
	raw, err := os.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read perfdata metadata %s", fileName)
	}
	svc := Service{}
	if err := xml.Unmarshal(raw, &svc); err != nil {
		return nil, errors.Wrapf(err, "can't parse perfdata metadata %s", fileName)
	}
	pdLog.Debugf("%s/%s lists %d datasources", host, service, len(svc.Datasources))
	return &svc, nil
}

// Select returns every datasource carrying the given name, in document
// order. Most services list a name once, but aggregated services may map
// one logical metric to several physical series.
func (s *Service) Select(name string) []Datasource {
	var matched []Datasource
	for _, ds := range s.Datasources {
		if ds.Name == name {
			matched = append(matched, ds)
		}
	}
	return matched
}

// Names returns the distinct datasource names, in document order.
func (s *Service) Names() []string {
	var names []string
	seen := map[string]bool{}
	for _, ds := range s.Datasources {
		if !seen[ds.Name] {
			seen[ds.Name] = true
			names = append(names, ds.Name)
		}
	}
	return names
}
