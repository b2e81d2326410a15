// Copyright (c) 2026 The Argus Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rules holds the static sender rule table — a mapping from
// identifying substrings (mostly email domains) to canonical sender
// tags. The built-in table covers the known senders; config-driven
// overrides are merged in front so operators can add or re-map domains
// without a rebuild.
package rules

import "strings"

// Rule maps one identifying substring to a canonical sender tag.
// Matching is case-insensitive substring containment.
type Rule struct {
	Match string
	Tag   string
}

// builtin is the default domain → sender tag table. Order matters:
// rules are evaluated top to bottom and the first match wins.
var builtin = []Rule{
	{"@gs.com", "Goldman Sachs"},
	{"@goldmansachs.com", "Goldman Sachs"},
	{"@itau.com.br", "Itau"},
	{"@itau.com", "Itau"},
	{"@itaubba.com.br", "Itau"},
	{"@bloomberg.com", "Bloomberg"},
	{"@bloomberg.net", "Bloomberg"},
	{"@ft.com", "Financial Times"},
	{"@wsj.com", "Wall Street Journal"},
	{"@dowjones.com", "Wall Street Journal"},
	{"@barrons.com", "Wall Street Journal"},
	{"@jpmorgan.com", "J.P. Morgan"},
	{"@jpmchase.com", "J.P. Morgan"},
	{"@rosenbergresearch.com", "Rosenberg Research"},
	{"@substack.com", "Substack Newsletters"},
	{"@morganstanley.com", "Morgan Stanley"},
	{"@citi.com", "Citigroup"},
	{"@citigroup.com", "Citigroup"},
	{"@bankofamerica.com", "Bank of America"},
	{"@barclays.com", "Barclays"},
	{"@db.com", "Deutsche Bank"},
	{"@deutschebank.com", "Deutsche Bank"},
	{"@thomsonreuters.com", "Reuters"},
	{"@apollo.com", "Torsten Slok"},
	{"@estadao.com.br", "Estadão"},
	{"@folhadespaulo.com.br", "Folha"},
}

// Table is an ordered, immutable sender rule table.
type Table struct {
	rules []Rule
}

// NewTable builds a rule table from the built-in rules plus optional
// overrides. Overrides are placed in front of the built-ins, so an
// override for an existing substring wins.
func NewTable(overrides []Rule) *Table {
	rules := make([]Rule, 0, len(overrides)+len(builtin))
	for _, r := range overrides {
		if r.Match == "" || r.Tag == "" {
			continue
		}
		rules = append(rules, Rule{Match: strings.ToLower(r.Match), Tag: r.Tag})
	}
	rules = append(rules, builtin...)
	return &Table{rules: rules}
}

// Lookup scans the table in order and returns the tag of the first rule
// whose match substring occurs in value (case-insensitive).
func (t *Table) Lookup(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	lower := strings.ToLower(value)
	for _, r := range t.rules {
		if strings.Contains(lower, r.Match) {
			return r.Tag, true
		}
	}
	return "", false
}

// Rules returns the table contents in evaluation order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}
