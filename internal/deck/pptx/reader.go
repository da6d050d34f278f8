package pptx

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var slidePartRe = regexp.MustCompile(`^ppt/slides/slide[0-9]+\.xml$`)

// SlideCount opens a package and reports how many slide parts it contains.
func SlideCount(path string) (int, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer r.Close()

	count := 0
	for _, f := range r.File {
		if slidePartRe.MatchString(f.Name) {
			count++
		}
	}
	return count, nil
}

// SlideText returns the text runs of slide n (1-based) in document order.
func SlideText(path string, n int) ([]string, error) {
	return partTextRuns(path, fmt.Sprintf("ppt/slides/slide%d.xml", n))
}

// NotesText returns the speaker notes of slide n, or "" when the slide has
// no notes part.
func NotesText(path string, n int) (string, error) {
	runs, err := partTextRuns(path, fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", n))
	if err != nil {
		return "", err
	}
	return strings.Join(runs, ""), nil
}

// HasMedia reports whether slide n carries an embedded picture.
func HasMedia(path string, n int) (bool, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return false, fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer r.Close()

	name := fmt.Sprintf("ppt/media/image%d.png", n)
	for _, f := range r.File {
		if f.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func partTextRuns(path, part string) ([]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer r.Close()

	var file *zip.File
	for _, f := range r.File {
		if f.Name == part {
			file = f
			break
		}
	}
	if file == nil {
		return nil, nil
	}

	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open part %q: %w", part, err)
	}
	defer rc.Close()

	return collectTextRuns(rc)
}

// collectTextRuns walks the XML stream and gathers the content of every
// drawingml <a:t> element.
func collectTextRuns(r io.Reader) ([]string, error) {
	d := xml.NewDecoder(r)
	var runs []string
	inText := false
	var current strings.Builder

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed part: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "t" && inText {
				runs = append(runs, current.String())
				inText = false
			}
		}
	}
	return runs, nil
}
