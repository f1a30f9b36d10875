package oracle

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are a medical coding expert. Answer with JSON only: no markdown, no commentary."

func comparePrompt(label string, pairs []Pair) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Determine whether each pair of %s descriptions describes the same thing. ", label)
	b.WriteString("Wording and abbreviations may differ; treat pairs that convey the same clinical meaning as equivalent ")
	b.WriteString(`(for example "Left Foot X-ray test" and "X-ray examination of foot"). `)
	b.WriteString(`Do not be lenient: "Chest pain on breathing" and "Heart disease" are not equivalent.`)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Respond with a JSON array of exactly %d strings, each \"YES\" or \"NO\", in pair order.\n", len(pairs))
	b.WriteString("Pairs:\n")
	for i, p := range pairs {
		fmt.Fprintf(&b, "%d. Description A: %s\n   Description B: %s\n", i+1, p.Extracted, p.Reference)
	}
	return b.String()
}

func justifyPrompt(procedures, diagnoses []Described) string {
	var b strings.Builder
	b.WriteString("ICD diagnoses:\n")
	for _, d := range diagnoses {
		fmt.Fprintf(&b, "- ICD %s: %s\n", d.Code, d.Description)
	}
	b.WriteString("\nCPT services:\n")
	for _, p := range procedures {
		fmt.Fprintf(&b, "- CPT %s: %s\n", p.Code, p.Description)
	}
	b.WriteString("\nFor every CPT code, list the ICD codes above that make the service medically necessary. ")
	b.WriteString("Use an empty list when no diagnosis supports it. ")
	b.WriteString(`Respond with a JSON object mapping each CPT code to an array of ICD codes, e.g. {"99213": ["J209"]}.`)
	b.WriteString("\n")
	return b.String()
}
