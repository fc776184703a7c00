package planner

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"otto/internal/ports"
)

// TemplateStep is one declared step in a plan template. Params may reference
// {{description}}, replaced with the task description at instantiation.
type TemplateStep struct {
	Title       string         `yaml:"title"`
	Description string         `yaml:"description"`
	Tool        string         `yaml:"tool"`
	Params      map[string]any `yaml:"params"`
	// DependsOnPrevious chains the step after the one before it; false means
	// the step only depends on the template's first step.
	DependsOnPrevious bool             `yaml:"depends_on_previous"`
	Complexity        ports.Complexity `yaml:"complexity"`
	EstimatedSeconds  int              `yaml:"estimated_seconds"`
}

// Template is one entry of the plan-template catalog. The catalog is data:
// deployments can replace it from YAML without code changes.
type Template struct {
	Name             string           `yaml:"name"`
	DisplayName      string           `yaml:"display_name"`
	Description      string           `yaml:"description"`
	Keywords         []string         `yaml:"keywords"`
	Complexity       ports.Complexity `yaml:"complexity"`
	EstimatedSeconds int              `yaml:"estimated_seconds"`
	RequiredTools    []string         `yaml:"required_tools"`
	Steps            []TemplateStep   `yaml:"steps"`
}

// Catalog returns the built-in seven-template catalog.
func Catalog() []Template {
	return []Template{
		{
			Name:             "web-development",
			DisplayName:      "Web Development",
			Description:      "Building or changing a web project",
			Keywords:         []string{"web", "website", "página", "html", "css", "frontend", "backend", "api", "server", "servidor", "app", "aplicación"},
			Complexity:       ports.ComplexityMedium,
			EstimatedSeconds: 600,
			RequiredTools:    []string{"web_search", "file_write", "shell"},
			Steps: []TemplateStep{
				{Title: "Research approach", Description: "Search for current practices relevant to the request", Tool: "web_search", Params: map[string]any{"query": "{{description}}"}, EstimatedSeconds: 60},
				{Title: "Scaffold project files", Description: "Create the initial project structure", Tool: "file_write", Params: map[string]any{"path": "index.html", "content": "<!doctype html>\n<html></html>\n"}, DependsOnPrevious: true, EstimatedSeconds: 120},
				{Title: "Implement the request", Description: "Apply the requested changes", Tool: "shell", Params: map[string]any{"command": "ls -la"}, DependsOnPrevious: true, Complexity: ports.ComplexityMedium, EstimatedSeconds: 240},
				{Title: "Verify result", Description: "List the produced files", Tool: "list_files", Params: map[string]any{"path": "."}, DependsOnPrevious: true, EstimatedSeconds: 60},
			},
		},
		{
			Name:             "data-analysis",
			DisplayName:      "Data Analysis",
			Description:      "Analyzing or processing data",
			Keywords:         []string{"datos", "data", "análisis", "analysis", "csv", "excel", "estadística", "statistics", "gráfico", "chart", "dataset"},
			Complexity:       ports.ComplexityHigh,
			EstimatedSeconds: 660,
			RequiredTools:    []string{"file_read", "shell", "web_search", "deep_research"},
			Steps: []TemplateStep{
				{Title: "Locate the data", Description: "List available input files", Tool: "list_files", Params: map[string]any{"path": "."}, EstimatedSeconds: 30},
				{Title: "Inspect the data", Description: "Read the input for structure and quality", Tool: "shell", Params: map[string]any{"command": "head -20 *.csv 2>/dev/null || true"}, DependsOnPrevious: true, EstimatedSeconds: 60},
				{Title: "Research methodology", Description: "Research the analysis approach", Tool: "deep_research", Params: map[string]any{"topic": "{{description}}"}, DependsOnPrevious: true, Complexity: ports.ComplexityHigh, EstimatedSeconds: 300},
				{Title: "Run the analysis", Description: "Execute the analysis", Tool: "shell", Params: map[string]any{"command": "echo analysis"}, DependsOnPrevious: true, Complexity: ports.ComplexityHigh, EstimatedSeconds: 210},
				{Title: "Write the report", Description: "Save the findings", Tool: "file_write", Params: map[string]any{"path": "report.md", "content": "# Report\n"}, DependsOnPrevious: true, EstimatedSeconds: 60},
			},
		},
		{
			Name:             "file-processing",
			DisplayName:      "File Processing",
			Description:      "Reading, transforming, or organizing files",
			Keywords:         []string{"archivo", "file", "archivos", "files", "carpeta", "folder", "directorio", "directory", "procesa", "process", "convierte", "convert", "renombra", "rename"},
			Complexity:       ports.ComplexityLow,
			EstimatedSeconds: 165,
			RequiredTools:    []string{"file_read", "file_write", "shell"},
			Steps: []TemplateStep{
				{Title: "Survey files", Description: "List the files to process", Tool: "list_files", Params: map[string]any{"path": "."}, EstimatedSeconds: 15},
				{Title: "Process files", Description: "Apply the requested transformation", Tool: "shell", Params: map[string]any{"command": "echo process"}, DependsOnPrevious: true, EstimatedSeconds: 120},
				{Title: "Verify output", Description: "Confirm the result", Tool: "list_files", Params: map[string]any{"path": "."}, DependsOnPrevious: true, EstimatedSeconds: 30},
			},
		},
		{
			Name:             "administration",
			DisplayName:      "System Administration",
			Description:      "System configuration and maintenance",
			Keywords:         []string{"sistema", "system", "instala", "install", "configura", "configure", "servicio", "service", "permisos", "permissions", "usuario", "user", "proceso"},
			Complexity:       ports.ComplexityMedium,
			EstimatedSeconds: 270,
			RequiredTools:    []string{"shell", "file_read"},
			Steps: []TemplateStep{
				{Title: "Inspect current state", Description: "Check the relevant system state", Tool: "shell", Params: map[string]any{"command": "uname -a"}, EstimatedSeconds: 30},
				{Title: "Apply changes", Description: "Perform the administration task", Tool: "shell", Params: map[string]any{"command": "echo apply"}, DependsOnPrevious: true, Complexity: ports.ComplexityMedium, EstimatedSeconds: 180},
				{Title: "Verify changes", Description: "Confirm the new state", Tool: "shell", Params: map[string]any{"command": "echo verify"}, DependsOnPrevious: true, EstimatedSeconds: 60},
			},
		},
		{
			Name:             "research",
			DisplayName:      "Research",
			Description:      "Gathering and summarizing information",
			Keywords:         []string{"investiga", "research", "informe", "report", "información", "information", "busca", "search", "fuentes", "sources", "resumen", "summary", "estudio"},
			Complexity:       ports.ComplexityMedium,
			EstimatedSeconds: 450,
			RequiredTools:    []string{"web_search", "deep_research"},
			Steps: []TemplateStep{
				{Title: "Initial search", Description: "Run a broad search on the topic", Tool: "web_search", Params: map[string]any{"query": "{{description}}"}, EstimatedSeconds: 60},
				{Title: "Deep research", Description: "Research the topic across sources", Tool: "deep_research", Params: map[string]any{"topic": "{{description}}"}, DependsOnPrevious: true, Complexity: ports.ComplexityMedium, EstimatedSeconds: 300},
				{Title: "Save findings", Description: "Write the research summary", Tool: "file_write", Params: map[string]any{"path": "research.md", "content": "# Findings\n"}, DependsOnPrevious: true, EstimatedSeconds: 90},
			},
		},
		{
			Name:             "automation",
			DisplayName:      "Automation",
			Description:      "Scripting and repeated task automation",
			Keywords:         []string{"automatiza", "automate", "script", "cron", "tarea programada", "scheduled", "batch", "pipeline", "workflow"},
			Complexity:       ports.ComplexityHigh,
			EstimatedSeconds: 330,
			RequiredTools:    []string{"shell", "file_write", "web_fetch"},
			Steps: []TemplateStep{
				{Title: "Design the script", Description: "Write the automation script", Tool: "file_write", Params: map[string]any{"path": "automate.sh", "content": "#!/bin/bash\n"}, EstimatedSeconds: 120},
				{Title: "Run the script", Description: "Execute the automation", Tool: "shell", Params: map[string]any{"command": "bash automate.sh"}, DependsOnPrevious: true, Complexity: ports.ComplexityHigh, EstimatedSeconds: 150},
				{Title: "Verify the outcome", Description: "Check the automation output", Tool: "shell", Params: map[string]any{"command": "echo verify"}, DependsOnPrevious: true, EstimatedSeconds: 60},
			},
		},
		{
			Name:             "general",
			DisplayName:      "General",
			Description:      "Fallback for unclassified tasks",
			Keywords:         nil,
			Complexity:       ports.ComplexityMedium,
			EstimatedSeconds: 300,
			RequiredTools:    []string{"web_search", "deep_research", "file_write"},
			Steps: []TemplateStep{
				{Title: "Understand the task", Description: "Search for context on the request", Tool: "web_search", Params: map[string]any{"query": "{{description}}"}, EstimatedSeconds: 60},
				{Title: "Gather details", Description: "Research the request in depth", Tool: "deep_research", Params: map[string]any{"topic": "{{description}}"}, DependsOnPrevious: true, EstimatedSeconds: 150},
				{Title: "Produce the result", Description: "Write the outcome", Tool: "file_write", Params: map[string]any{"path": "result.md", "content": "# Result\n"}, DependsOnPrevious: true, EstimatedSeconds: 60},
				{Title: "Confirm output", Description: "List the produced files", Tool: "list_files", Params: map[string]any{"path": "."}, DependsOnPrevious: true, EstimatedSeconds: 30},
			},
		},
	}
}

// SelectTemplate picks the template whose keywords best match the task
// description. Ties and zero scores fall through to "general".
func SelectTemplate(templates []Template, description string) Template {
	lower := strings.ToLower(description)
	best := -1
	bestScore := 0
	var general *Template

	for i := range templates {
		if templates[i].Name == "general" {
			general = &templates[i]
			continue
		}
		score := 0
		for _, keyword := range templates[i].Keywords {
			if strings.Contains(lower, keyword) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = i
		}
	}

	if best >= 0 {
		return templates[best]
	}
	if general != nil {
		return *general
	}
	return templates[len(templates)-1]
}

// LoadTemplates reads a catalog from YAML, replacing the built-in one.
func LoadTemplates(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	var catalog struct {
		Templates []Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if len(catalog.Templates) == 0 {
		return nil, fmt.Errorf("template catalog is empty")
	}
	return catalog.Templates, nil
}
