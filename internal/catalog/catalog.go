// Package catalog resolves market extract requests against the device
// topology reference document.
package catalog

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a market or extract name is not in the catalog.
var ErrNotFound = eris.New("catalog: not found")

// Definition is one retrievable dataset for one market. Only complete
// definitions make it into a Catalog.
type Definition struct {
	Name           string `json:"name" yaml:"-"`
	Market         string `json:"market" yaml:"-"`
	DeviceKey      string `json:"cne" yaml:"cne"`
	ClassID        string `json:"rt_class" yaml:"rt-class"`
	DecoderExtract string `json:"decoder_extracts" yaml:"decoder_extracts"`
}

// String renders the definition for the listing output.
func (d Definition) String() string {
	return fmt.Sprintf("{'cne': '%s', 'rt-class': '%s', 'decoder_extracts': '%s'}",
		d.DeviceKey, d.ClassID, d.DecoderExtract)
}

// DecoderExtract is a named schema: the fields requested from the appliance
// plus the fields the appliance adds to every row.
type DecoderExtract struct {
	Name           string   `json:"name"`
	Fields         []string `json:"extract_fields"`
	AppendedFields []string `json:"corvil_added_fields"`
}

// FieldList is the comma-joined field argument for the retrieval tool.
func (d DecoderExtract) FieldList() string {
	return strings.Join(d.Fields, ",")
}

// ExpectedColumns returns the header the appliance should produce: appended
// fields first, then the extract's own fields, both in declared order.
func (d DecoderExtract) ExpectedColumns() []string {
	cols := make([]string, 0, len(d.AppendedFields)+len(d.Fields))
	cols = append(cols, d.AppendedFields...)
	cols = append(cols, d.Fields...)
	return cols
}

// Catalog is the validated, read-only view of the topology documents.
type Catalog struct {
	markets  map[string]map[string]Definition
	decoders map[string]DecoderExtract
	devices  map[string]map[string]string // environment -> device key -> address
	marketDB map[string]string
}

// Load reads the topology document and, when marketDBPath is non-empty, the
// market-to-database document.
func Load(corvilPath, marketDBPath string) (*Catalog, error) {
	var doc topologyDoc
	if err := readYAML(corvilPath, &doc); err != nil {
		return nil, err
	}

	c := build(doc)

	if marketDBPath != "" {
		var mdb marketDBDoc
		if err := readYAML(marketDBPath, &mdb); err != nil {
			return nil, err
		}
		for mic, m := range mdb.Markets {
			c.marketDB[mic] = m.M2DBMS
		}
	}

	return c, nil
}

// build runs the single validation pass over a parsed topology document.
func build(doc topologyDoc) *Catalog {
	c := &Catalog{
		markets:  make(map[string]map[string]Definition),
		decoders: make(map[string]DecoderExtract),
		devices:  make(map[string]map[string]string),
		marketDB: make(map[string]string),
	}

	for mic, m := range doc.Markets {
		if m.Extracts == nil {
			continue
		}
		valid := make(map[string]Definition)
		for name, e := range *m.Extracts {
			def := Definition{
				Name:           name,
				Market:         mic,
				DeviceKey:      strings.TrimSpace(e.CNE),
				ClassID:        strings.TrimSpace(e.RTClass),
				DecoderExtract: strings.TrimSpace(e.DecoderExtracts),
			}
			if !def.complete() {
				zap.L().Debug("catalog: dropping incomplete extract",
					zap.String("mic", mic),
					zap.String("extract", name),
				)
				continue
			}
			valid[name] = def
		}
		c.markets[mic] = valid
	}

	for name, d := range doc.DecoderExtracts {
		c.decoders[name] = DecoderExtract{
			Name:           name,
			Fields:         unquote(d.ExtractFields),
			AppendedFields: unquote(d.CorvilAddedFields),
		}
	}

	for env, e := range doc.Corvil {
		devs := make(map[string]string, len(e.CNE))
		for key, d := range e.CNE {
			devs[key] = strings.TrimSpace(d.IP)
		}
		c.devices[env] = devs
	}

	return c
}

func (d Definition) complete() bool {
	return d.DeviceKey != "" && d.ClassID != "" && d.DecoderExtract != ""
}

func unquote(fields []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.ReplaceAll(f, `"`, ""))
	}
	return out
}

// Markets returns every market with an extracts block, sorted.
func (c *Catalog) Markets() []string {
	out := make([]string, 0, len(c.markets))
	for mic := range c.markets {
		out = append(out, mic)
	}
	sort.Strings(out)
	return out
}

// HasMarket reports whether mic has an extracts block.
func (c *Catalog) HasMarket(mic string) bool {
	_, ok := c.markets[mic]
	return ok
}

// ListAvailable returns the valid definitions for mic ordered by name.
func (c *Catalog) ListAvailable(mic string) ([]Definition, error) {
	defs, ok := c.markets[mic]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "market %q", mic)
	}
	out := make([]Definition, 0, len(defs))
	for _, d := range defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Resolve returns the definition for extractName in mic.
func (c *Catalog) Resolve(mic, extractName string) (Definition, error) {
	defs, ok := c.markets[mic]
	if !ok {
		return Definition{}, eris.Wrapf(ErrNotFound, "market %q", mic)
	}
	d, ok := defs[extractName]
	if !ok {
		return Definition{}, eris.Wrapf(ErrNotFound, "extract %q for market %q", extractName, mic)
	}
	return d, nil
}

// Decoder returns the decoder extract a definition refers to.
func (c *Catalog) Decoder(def Definition) (DecoderExtract, error) {
	d, ok := c.decoders[def.DecoderExtract]
	if !ok {
		return DecoderExtract{}, eris.Errorf("catalog: decoder extract %q referenced by %s/%s is not defined",
			def.DecoderExtract, def.Market, def.Name)
	}
	return d, nil
}

// DeviceAddress returns the registered address of a device in an environment.
func (c *Catalog) DeviceAddress(env, deviceKey string) (string, error) {
	devs, ok := c.devices[env]
	if !ok {
		return "", eris.Errorf("catalog: no devices registered for environment %q", env)
	}
	addr := devs[deviceKey]
	if addr == "" {
		return "", eris.Errorf("catalog: no address for device %q in environment %q", deviceKey, env)
	}
	return addr, nil
}

// Database returns the database mapped to mic, or "" if none.
func (c *Catalog) Database(mic string) string {
	return c.marketDB[mic]
}

// WriteListing prints the available extracts for mic in the operator format.
func (c *Catalog) WriteListing(w io.Writer, mic string) error {
	defs, err := c.ListAvailable(mic)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "List of available extracts for mic: %s\n\n", mic)
	for _, d := range defs {
		fmt.Fprintf(w, "%s: %s\n", d.Name, d)
	}
	return nil
}
