package export

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"gpusift/internal/detector"
	"gpusift/internal/extract"
)

// Document is the on-disk form of one extraction.
type Document struct {
	Image         string      `yaml:"image"`
	Width         int         `yaml:"width"`
	Height        int         `yaml:"height"`
	PeakThreshold float64     `yaml:"peak_threshold"`
	Attempts      int         `yaml:"attempts"`
	Keypoints     int         `yaml:"keypoints"`
	Points        [][]float32 `yaml:"points"`
	Descriptors   [][]float32 `yaml:"descriptors"`
}

type row []float32

// MarshalYAML keeps each table row on one line.
func (r row) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range r {
		node.Content = append(node.Content, &yaml.Node{
			Kind:  yaml.ScalarNode,
			Value: fmt.Sprintf("%g", v),
		})
	}
	return node, nil
}

type document struct {
	Image         string  `yaml:"image"`
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	PeakThreshold float64 `yaml:"peak_threshold"`
	Attempts      int     `yaml:"attempts"`
	Keypoints     int     `yaml:"keypoints"`
	Points        []row   `yaml:"points"`
	Descriptors   []row   `yaml:"descriptors"`
}

func NewDocument(name string, img detector.Image, res *extract.Result) Document {
	doc := Document{Image: name, Width: img.Width, Height: img.Height}
	if res == nil {
		return doc
	}

	doc.PeakThreshold = res.PeakThreshold
	doc.Attempts = res.Attempts
	doc.Keypoints = res.Features
	doc.Points = tableRows(res.Points)
	doc.Descriptors = tableRows(res.Descriptors)
	return doc
}

func tableRows(t extract.Table) [][]float32 {
	rows := make([][]float32, t.Rows)
	for i := range rows {
		rows[i] = t.Row(i)
	}
	return rows
}

func Write(w io.Writer, doc Document) error {
	out := document{
		Image:         doc.Image,
		Width:         doc.Width,
		Height:        doc.Height,
		PeakThreshold: doc.PeakThreshold,
		Attempts:      doc.Attempts,
		Keypoints:     doc.Keypoints,
		Points:        make([]row, len(doc.Points)),
		Descriptors:   make([]row, len(doc.Descriptors)),
	}
	for i, r := range doc.Points {
		out.Points[i] = r
	}
	for i, r := range doc.Descriptors {
		out.Descriptors[i] = r
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}
	return enc.Close()
}

func WriteFile(path string, doc Document) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := Write(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func Read(r io.Reader) (Document, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("failed to decode features: %w", err)
	}
	return doc, nil
}
