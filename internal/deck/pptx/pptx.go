// Package pptx assembles minimal PresentationML packages. It covers the
// slide shapes this server produces (title, bullet list, one picture,
// speaker notes) and nothing more.
package pptx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
)

// Slide is one rendered slide.
type Slide struct {
	Title   string
	Bullets []string
	Notes   string
	// Image holds raw PNG bytes; nil means no picture on the slide.
	Image []byte
}

// Style carries the font settings applied to every slide.
type Style struct {
	FontName    string
	TitleSizePt int
	BodySizePt  int
}

// DefaultStyle matches the server defaults.
func DefaultStyle() Style {
	return Style{
		FontName:    "Calibri",
		TitleSizePt: 32,
		BodySizePt:  18,
	}
}

// Writer accumulates slides and serializes them into one package.
type Writer struct {
	style  Style
	slides []Slide
}

// NewWriter builds a writer. Zero style fields fall back to the defaults.
func NewWriter(style Style) *Writer {
	def := DefaultStyle()
	if style.FontName == "" {
		style.FontName = def.FontName
	}
	if style.TitleSizePt <= 0 {
		style.TitleSizePt = def.TitleSizePt
	}
	if style.BodySizePt <= 0 {
		style.BodySizePt = def.BodySizePt
	}
	return &Writer{style: style}
}

// AddSlide appends a slide to the deck.
func (w *Writer) AddSlide(s Slide) {
	w.slides = append(w.slides, s)
}

// SlideCount reports the number of slides added so far.
func (w *Writer) SlideCount() int {
	return len(w.slides)
}

// Write serializes the package to out.
func (w *Writer) Write(out io.Writer) error {
	if len(w.slides) == 0 {
		return fmt.Errorf("cannot write an empty presentation")
	}

	z := zip.NewWriter(out)
	add := func(name string, data []byte) error {
		f, err := z.Create(name)
		if err != nil {
			return fmt.Errorf("failed to create part %q: %w", name, err)
		}
		if _, err := f.Write(data); err != nil {
			return fmt.Errorf("failed to write part %q: %w", name, err)
		}
		return nil
	}

	parts := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", w.contentTypesXML()},
		{"_rels/.rels", []byte(rootRelsXML)},
		{"docProps/core.xml", []byte(corePropsXML)},
		{"docProps/app.xml", []byte(appPropsXML)},
		{"ppt/presentation.xml", w.presentationXML()},
		{"ppt/_rels/presentation.xml.rels", w.presentationRelsXML()},
		{"ppt/slideMasters/slideMaster1.xml", []byte(slideMasterXML)},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", []byte(slideMasterRelsXML)},
		{"ppt/slideLayouts/slideLayout1.xml", []byte(slideLayoutXML)},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", []byte(slideLayoutRelsXML)},
		{"ppt/notesMasters/notesMaster1.xml", []byte(notesMasterXML)},
		{"ppt/notesMasters/_rels/notesMaster1.xml.rels", []byte(notesMasterRelsXML)},
		{"ppt/theme/theme1.xml", []byte(themeXML)},
	}
	for _, part := range parts {
		if err := add(part.name, part.data); err != nil {
			return err
		}
	}

	for i, s := range w.slides {
		n := i + 1
		if err := add(fmt.Sprintf("ppt/slides/slide%d.xml", n), w.slideXML(s)); err != nil {
			return err
		}
		if err := add(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n), slideRelsXML(s, n)); err != nil {
			return err
		}
		if s.Notes != "" {
			if err := add(fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", n), w.notesXML(s)); err != nil {
				return err
			}
			if err := add(fmt.Sprintf("ppt/notesSlides/_rels/notesSlide%d.xml.rels", n), notesRelsXML(n)); err != nil {
				return err
			}
		}
		if len(s.Image) > 0 {
			if err := add(fmt.Sprintf("ppt/media/image%d.png", n), s.Image); err != nil {
				return err
			}
		}
	}

	if err := z.Close(); err != nil {
		return fmt.Errorf("failed to finalize package: %w", err)
	}
	return nil
}

// Save writes the package to a file.
func (w *Writer) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", path, err)
	}
	if err := w.Write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %q: %w", path, err)
	}
	return nil
}

func (w *Writer) contentTypesXML() []byte {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	b.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	b.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	b.WriteString(`<Default Extension="png" ContentType="image/png"/>`)
	b.WriteString(`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>`)
	b.WriteString(`<Override PartName="/docProps/app.xml" ContentType="application/vnd.openxmlformats-officedocument.extended-properties+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/slideMasters/slideMaster1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/slideLayouts/slideLayout1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/notesMasters/notesMaster1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.notesMaster+xml"/>`)
	b.WriteString(`<Override PartName="/ppt/theme/theme1.xml" ContentType="application/vnd.openxmlformats-officedocument.theme+xml"/>`)
	for i, s := range w.slides {
		n := i + 1
		fmt.Fprintf(&b, `<Override PartName="/ppt/slides/slide%d.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`, n)
		if s.Notes != "" {
			fmt.Fprintf(&b, `<Override PartName="/ppt/notesSlides/notesSlide%d.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.notesSlide+xml"/>`, n)
		}
	}
	b.WriteString(`</Types>`)
	return b.Bytes()
}

func (w *Writer) presentationXML() []byte {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<p:presentation xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">`)
	b.WriteString(`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst>`)
	b.WriteString(`<p:notesMasterIdLst><p:notesMasterId r:id="rId2"/></p:notesMasterIdLst>`)
	b.WriteString(`<p:sldIdLst>`)
	for i := range w.slides {
		fmt.Fprintf(&b, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, 3+i)
	}
	b.WriteString(`</p:sldIdLst>`)
	fmt.Fprintf(&b, `<p:sldSz cx="%d" cy="%d"/>`, slideCX, slideCY)
	fmt.Fprintf(&b, `<p:notesSz cx="%d" cy="%d"/>`, slideCY, slideCX)
	b.WriteString(`</p:presentation>`)
	return b.Bytes()
}

func (w *Writer) presentationRelsXML() []byte {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	fmt.Fprintf(&b, `<Relationship Id="rId1" Type="%s" Target="slideMasters/slideMaster1.xml"/>`, relTypeSlideMaster)
	fmt.Fprintf(&b, `<Relationship Id="rId2" Type="%s" Target="notesMasters/notesMaster1.xml"/>`, relTypeNotesMaster)
	for i := range w.slides {
		fmt.Fprintf(&b, `<Relationship Id="rId%d" Type="%s" Target="slides/slide%d.xml"/>`, 3+i, relTypeSlide, i+1)
	}
	b.WriteString(`</Relationships>`)
	return b.Bytes()
}

func (w *Writer) slideXML(s Slide) []byte {
	bodyCXUsed := bodyFullCX
	if len(s.Image) > 0 {
		bodyCXUsed = bodyImageCX
	}

	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<p:sld xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">`)
	b.WriteString(`<p:cSld><p:spTree>`)
	b.WriteString(`<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>`)

	// Title text box
	fmt.Fprintf(&b, `<p:sp><p:nvSpPr><p:cNvPr id="2" name="Title"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`)
	fmt.Fprintf(&b, `<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr>`,
		marginX, titleY, bodyFullCX, titleCY)
	b.WriteString(`<p:txBody><a:bodyPr wrap="square"><a:normAutofit/></a:bodyPr><a:lstStyle/>`)
	fmt.Fprintf(&b, `<a:p><a:r><a:rPr lang="en-US" sz="%d" b="1" dirty="0"><a:latin typeface="%s"/></a:rPr><a:t>%s</a:t></a:r></a:p>`,
		w.style.TitleSizePt*100, escape(w.style.FontName), escape(s.Title))
	b.WriteString(`</p:txBody></p:sp>`)

	// Bullet list text box
	fmt.Fprintf(&b, `<p:sp><p:nvSpPr><p:cNvPr id="3" name="Content"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`)
	fmt.Fprintf(&b, `<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr>`,
		marginX, bodyY, bodyCXUsed, bodyCY)
	b.WriteString(`<p:txBody><a:bodyPr wrap="square"><a:normAutofit/></a:bodyPr><a:lstStyle/>`)
	for _, bullet := range s.Bullets {
		fmt.Fprintf(&b, `<a:p><a:pPr marL="285750" indent="-285750"><a:buFont typeface="Arial"/><a:buChar char="&#8226;"/></a:pPr><a:r><a:rPr lang="en-US" sz="%d" dirty="0"><a:latin typeface="%s"/></a:rPr><a:t>%s</a:t></a:r></a:p>`,
			w.style.BodySizePt*100, escape(w.style.FontName), escape(bullet))
	}
	if len(s.Bullets) == 0 {
		b.WriteString(`<a:p/>`)
	}
	b.WriteString(`</p:txBody></p:sp>`)

	// Optional picture
	if len(s.Image) > 0 {
		b.WriteString(`<p:pic><p:nvPicPr><p:cNvPr id="4" name="Picture"/><p:cNvPicPr/><p:nvPr/></p:nvPicPr>`)
		b.WriteString(`<p:blipFill><a:blip r:embed="rId2"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>`)
		fmt.Fprintf(&b, `<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:pic>`,
			imageX, imageY, imageCX, imageCY)
	}

	b.WriteString(`</p:spTree></p:cSld>`)
	b.WriteString(`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>`)
	b.WriteString(`</p:sld>`)
	return b.Bytes()
}

func slideRelsXML(s Slide, n int) []byte {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	fmt.Fprintf(&b, `<Relationship Id="rId1" Type="%s" Target="../slideLayouts/slideLayout1.xml"/>`, relTypeSlideLayout)
	nextID := 2
	if len(s.Image) > 0 {
		fmt.Fprintf(&b, `<Relationship Id="rId%d" Type="%s" Target="../media/image%d.png"/>`, nextID, relTypeImage, n)
		nextID++
	}
	if s.Notes != "" {
		fmt.Fprintf(&b, `<Relationship Id="rId%d" Type="%s" Target="../notesSlides/notesSlide%d.xml"/>`, nextID, relTypeNotesSlide, n)
	}
	b.WriteString(`</Relationships>`)
	return b.Bytes()
}

func (w *Writer) notesXML(s Slide) []byte {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<p:notes xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">`)
	b.WriteString(`<p:cSld><p:spTree>`)
	b.WriteString(`<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>`)
	b.WriteString(`<p:sp><p:nvSpPr><p:cNvPr id="2" name="Notes"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`)
	fmt.Fprintf(&b, `<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr>`,
		notesBoxX, notesBoxY, notesBoxCX, notesBoxCY)
	b.WriteString(`<p:txBody><a:bodyPr wrap="square"/><a:lstStyle/>`)
	fmt.Fprintf(&b, `<a:p><a:r><a:rPr lang="en-US" sz="%d" dirty="0"><a:latin typeface="%s"/></a:rPr><a:t>%s</a:t></a:r></a:p>`,
		w.style.BodySizePt*100, escape(w.style.FontName), escape(s.Notes))
	b.WriteString(`</p:txBody></p:sp>`)
	b.WriteString(`</p:spTree></p:cSld>`)
	b.WriteString(`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>`)
	b.WriteString(`</p:notes>`)
	return b.Bytes()
}

func notesRelsXML(n int) []byte {
	var b bytes.Buffer
	b.WriteString(xmlHeader)
	b.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`)
	fmt.Fprintf(&b, `<Relationship Id="rId1" Type="%s" Target="../notesMasters/notesMaster1.xml"/>`, relTypeNotesMaster)
	fmt.Fprintf(&b, `<Relationship Id="rId2" Type="%s" Target="../slides/slide%d.xml"/>`, relTypeSlide, n)
	b.WriteString(`</Relationships>`)
	return b.Bytes()
}

// escape renders text safe for element content.
func escape(s string) string {
	var b strings.Builder
	// xml.EscapeText only fails on a failing writer, which Builder is not.
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
