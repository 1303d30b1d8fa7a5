package main

import (
	"flag"
	"log"
	"os"

	"github.com/partnerwatch/ppscan/api/v1beta1/policies"
	"github.com/partnerwatch/ppscan/pkg/yaml"
)

var outFile = flag.String("o", "policies.v1beta1.json", "Output file for the generated schema")

func main() {
	flag.Parse()

	gen := yaml.NewSchemaGenerator(policies.New(),
		"github.com/partnerwatch/ppscan/api/v1beta1",
		"github.com/partnerwatch/ppscan/api/v1beta1/policies",
		"github.com/partnerwatch/ppscan/pkg/rule",
		"github.com/partnerwatch/ppscan/pkg/scan",
	)

	jsData, err := gen.Generate()
	if err != nil {
		log.Fatalf("generate JSON schema: %v", err)
	}

	err = os.WriteFile(*outFile, jsData, 0o600)
	if err != nil {
		log.Fatalf("write schema file: %v", err)
	}
}
