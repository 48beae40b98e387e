package config

import (
	"financial-statements-service/internal/categorizer"
	"financial-statements-service/internal/exporter"
	"financial-statements-service/internal/parser"
	"financial-statements-service/internal/server"
	"financial-statements-service/internal/service"
	"financial-statements-service/internal/store"
)

// CreateParserConfig creates a default statement parser configuration
func CreateParserConfig() *parser.Config {
	return parser.DefaultConfig()
}

// CreateRuleSet loads the categorization rules from the given path, or
// returns the built-in defaults when no path is set
func CreateRuleSet(rulesPath string) (*categorizer.RuleSet, error) {
	if rulesPath == "" {
		return categorizer.DefaultRuleSet(), nil
	}
	return categorizer.LoadRuleSet(rulesPath)
}

// CreateServerConfig creates a server configuration with CLI overrides applied
func CreateServerConfig(host string, port int) *server.Config {
	config := server.DefaultConfig()

	if host != "" {
		config.Host = host
	}
	if port > 0 {
		config.Port = port
	}

	return config
}

// CreateExportConfig creates an export configuration for the specified
// output format
func CreateExportConfig(format string) *exporter.ExportConfig {
	config := exporter.DefaultExportConfig()

	switch format {
	case "console":
		config.Format = exporter.FormatConsole
	case "json":
		config.Format = exporter.FormatJSON
	case "csv":
		config.Format = exporter.FormatCSV
		config.CSVHeaders = true
		config.CSVDelimiter = ','
	}

	return config
}

// BuildService assembles the full ingestion pipeline
func BuildService(rulesPath string) (*service.Service, error) {
	p, err := parser.NewParser(CreateParserConfig())
	if err != nil {
		return nil, err
	}

	ruleSet, err := CreateRuleSet(rulesPath)
	if err != nil {
		return nil, err
	}
	engine, err := categorizer.NewEngine(ruleSet)
	if err != nil {
		return nil, err
	}

	return service.NewService(p, engine, store.NewStore()), nil
}
