package catalog

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// topologyDoc mirrors the device topology reference document.
type topologyDoc struct {
	Markets         map[string]marketDoc         `yaml:"markets"`
	Corvil          map[string]environmentDoc    `yaml:"corvil"`
	DecoderExtracts map[string]decoderExtractDoc `yaml:"decoder_extracts"`
}

type marketDoc struct {
	// Extracts is a pointer so a market without an extracts block can be told
	// apart from one whose block is empty.
	Extracts *map[string]extractDoc `yaml:"extracts"`
}

type extractDoc struct {
	CNE             string `yaml:"cne"`
	RTClass         string `yaml:"rt-class"`
	DecoderExtracts string `yaml:"decoder_extracts"`
}

type environmentDoc struct {
	CNE map[string]deviceDoc `yaml:"cne"`
}

type deviceDoc struct {
	IP string `yaml:"ip"`
}

type decoderExtractDoc struct {
	ExtractFields     []string `yaml:"extract_fields"`
	CorvilAddedFields []string `yaml:"corvil_added_fields"`
}

// marketDBDoc mirrors the market-to-database reference document.
type marketDBDoc struct {
	Markets map[string]struct {
		M2DBMS string `yaml:"m2_dbms"`
	} `yaml:"markets"`
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "catalog: read %s", path)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return eris.Wrapf(err, "catalog: parse %s", path)
	}
	return nil
}
