package scrape

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	linkKeywords   = []string{"download", "csv", "excel", "data", "export", "下載", "匯出", "report", "歷史", "xls", "xlsx"}
	formKeywords   = []string{"download", "export", "csv", "excel", "data", "下載", "匯出"}
	scriptKeywords = []string{"download", "csv", "export", "datadown", "getdata", "下載", "匯出", "excel", "xls"}
	tableKeywords  = []string{"report", "data", "market", "daily", "歷史", "報表", "資料", "csv", "excel", "download", "export", "下載", "匯出"}
)

const snippetLen = 200

type Link struct {
	URL     string `json:"url"`
	Text    string `json:"text"`
	Type    string `json:"type"`
	Keyword string `json:"keyword"`
}

type FormInput struct {
	Tag       string `json:"type"`
	Name      string `json:"name"`
	Value     string `json:"value"`
	InputType string `json:"input_type"`
}

type Form struct {
	Action         string      `json:"action"`
	Method         string      `json:"method"`
	FullURL        string      `json:"full_url"`
	Inputs         []FormInput `json:"inputs"`
	LikelyDownload bool        `json:"likely_download"`
}

type Script struct {
	Keyword string `json:"keyword"`
	Snippet string `json:"snippet"`
}

// LinkAnalysis lists the download candidates found on a page.
type LinkAnalysis struct {
	Target       string    `json:"target_url"`
	AnalysisTime time.Time `json:"analysis_time"`
	Links        []Link    `json:"download_links"`
	Forms        []Form    `json:"forms"`
	Scripts      []Script  `json:"js_downloads"`
}

// TableLinks are the download links that probably lead to tabular data.
func (a LinkAnalysis) TableLinks() []Link {
	var out []Link
	for _, l := range a.Links {
		if _, ok := firstKeyword(strings.ToLower(l.URL)+" "+strings.ToLower(l.Text), tableKeywords); ok {
			out = append(out, l)
		}
	}
	return out
}

// AnalyzeLinks scans anchors, forms and inline scripts of page.
func AnalyzeLinks(page []byte, base string, now time.Time) (LinkAnalysis, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return LinkAnalysis{}, fmt.Errorf("parse base url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return LinkAnalysis{}, fmt.Errorf("parse html: %w", err)
	}

	out := LinkAnalysis{Target: base, AnalysisTime: now}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		text := strings.TrimSpace(a.Text())
		kw, ok := firstKeyword(strings.ToLower(href)+" "+strings.ToLower(text), linkKeywords)
		if !ok {
			return
		}
		out.Links = append(out.Links, Link{URL: resolve(baseURL, href), Text: text, Type: "direct_link", Keyword: kw})
	})

	doc.Find("form").Each(func(_ int, f *goquery.Selection) {
		action, _ := f.Attr("action")
		method := strings.ToUpper(f.AttrOr("method", "get"))
		form := Form{Action: action, Method: method, FullURL: base}
		if action != "" {
			form.FullURL = resolve(baseURL, action)
		}
		f.Find("input, select, textarea").Each(func(_ int, in *goquery.Selection) {
			form.Inputs = append(form.Inputs, FormInput{
				Tag:       goquery.NodeName(in),
				Name:      in.AttrOr("name", ""),
				Value:     in.AttrOr("value", ""),
				InputType: in.AttrOr("type", ""),
			})
		})
		_, form.LikelyDownload = firstKeyword(strings.ToLower(action), formKeywords)
		out.Forms = append(out.Forms, form)
	})

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		body := s.Text()
		if strings.TrimSpace(body) == "" {
			return
		}
		kw, ok := firstKeyword(strings.ToLower(body), scriptKeywords)
		if !ok {
			return
		}
		snippet := body
		if r := []rune(body); len(r) > snippetLen {
			snippet = string(r[:snippetLen]) + "..."
		}
		out.Scripts = append(out.Scripts, Script{Keyword: kw, Snippet: snippet})
	})

	return out, nil
}

func firstKeyword(s string, keywords []string) (string, bool) {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return k, true
		}
	}
	return "", false
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
