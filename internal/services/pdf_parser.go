package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"alfredoptarigan/consultant-matcher/internal/models"
)

type PDFParserService interface {
	ExtractText(filepath string) (string, error)
}

type pdfParserService struct{}

func NewPDFParserService() PDFParserService {
	return &pdfParserService{}
}

func (p *pdfParserService) ExtractText(filePath string) (string, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	var textBuilder strings.Builder
	totalPage := r.NumPage()

	for pageIndex := 1; pageIndex <= totalPage; pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}

		textBuilder.WriteString(text)
		textBuilder.WriteString("\n")
	}

	text := textBuilder.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("no text content found in PDF")
	}

	return text, nil
}

var (
	// rosters in the wild also spell it "Profle"
	profileHeader = regexp.MustCompile(`(?i)prof(?:i)?le\s*\d+\s*:`)
	fieldLabel    = regexp.MustCompile(`(?i)^\s*(name|email|skills|education|years of experience)\s*(?::\s*(.*))?$`)
	leadingNumber = regexp.MustCompile(`\d+`)
)

// ExtractProfiles splits roster text into "Profile N:" blocks and reads the
// Name, Email, Skills, Education and Years of Experience fields of each. Skills
// may continue over several lines.
func ExtractProfiles(text string) []models.ConsultantProfile {
	text = CleanText(text)
	bounds := profileHeader.FindAllStringIndex(text, -1)

	var profiles []models.ConsultantProfile
	for n, b := range bounds {
		end := len(text)
		if n+1 < len(bounds) {
			end = bounds[n+1][0]
		}
		if p, ok := parseProfileBlock(text[b[1]:end]); ok {
			profiles = append(profiles, p)
		}
	}
	return profiles
}

func parseProfileBlock(block string) (models.ConsultantProfile, bool) {
	fields := map[string][]string{}
	current := ""

	for _, line := range strings.Split(block, "\n") {
		if m := fieldLabel.FindStringSubmatch(line); m != nil {
			current = strings.ToLower(m[1])
			if v := strings.TrimSpace(m[2]); v != "" {
				fields[current] = append(fields[current], v)
			}
			continue
		}
		if current == "skills" {
			if v := strings.TrimSpace(line); v != "" {
				fields[current] = append(fields[current], v)
			}
		}
	}

	first := func(key string) string {
		if v := fields[key]; len(v) > 0 {
			return v[0]
		}
		return ""
	}

	p := models.ConsultantProfile{
		Name:      first("name"),
		Email:     strings.ToLower(first("email")),
		Education: first("education"),
		Skills:    splitSkills(fields["skills"]),
		Available: true,
	}
	if years := leadingNumber.FindString(first("years of experience")); years != "" {
		p.Experience, _ = strconv.Atoi(years)
	}

	return p, p.Name != "" || p.Email != ""
}

func splitSkills(lines []string) []string {
	var skills []string
	for _, line := range lines {
		for _, part := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ';' || r == '•' }) {
			if s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "-")); s != "" {
				skills = append(skills, s)
			}
		}
	}
	return skills
}

// CleanText trims every line and drops empty ones.
func CleanText(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	var cleanedLines []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleanedLines = append(cleanedLines, line)
		}
	}

	return strings.Join(cleanedLines, "\n")
}
