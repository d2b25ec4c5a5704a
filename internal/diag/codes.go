package diag

import (
	"fmt"
)

type Code uint16

const (
	// Неизвестная ошибка
	UnknownCode Code = 0

	// Синтаксические
	SynInfo          Code = 2000
	SynSyntaxError   Code = 2001
	SynMissingToken  Code = 2002
	SynPackageClause Code = 2003

	// Типизация
	SemTypeError          Code = 3000
	SemUnresolvedRef      Code = 3001
	SemMismatchedPackage  Code = 3002
	SemImportNotFound     Code = 3003
	SemUnusedImport       Code = 3019
	SemUnusedVariable     Code = 3020
	SemAnalysisIncomplete Code = 3099

	// Стиль
	StyNotFormatted   Code = 4001
	StyMissingDocComm Code = 4002

	// Проект
	PrjMissingReference Code = 5001
	PrjEmpty            Code = 5002
)

var codeDescription = map[Code]string{
	UnknownCode:           "Unknown error",
	SynInfo:               "Syntax information",
	SynSyntaxError:        "Syntax error",
	SynMissingToken:       "Missing token",
	SynPackageClause:      "Missing or malformed package clause",
	SemTypeError:          "Type error",
	SemUnresolvedRef:      "Unresolved reference",
	SemMismatchedPackage:  "Mismatched package name",
	SemImportNotFound:     "Import could not be resolved",
	SemUnusedImport:       "Unused import",
	SemUnusedVariable:     "Unused variable",
	SemAnalysisIncomplete: "Analysis stopped early",
	StyNotFormatted:       "File is not gofmt-formatted",
	StyMissingDocComm:     "Exported declaration without doc comment",
	PrjMissingReference:   "Referenced project is missing",
	PrjEmpty:              "Project has no source documents",
}

func (c Code) ID() string {
	switch ic := int(c); {
	case ic >= 2000 && ic < 3000:
		return fmt.Sprintf("SYN%04d", ic)
	case ic >= 3000 && ic < 4000:
		return fmt.Sprintf("SEM%04d", ic)
	case ic >= 4000 && ic < 5000:
		return fmt.Sprintf("STY%04d", ic)
	case ic >= 5000 && ic < 6000:
		return fmt.Sprintf("PRJ%04d", ic)
	}
	return "E0000"
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[UnknownCode]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}

// LookupCode maps a stable id back to a built-in code.
func LookupCode(id string) (Code, bool) {
	for c := range codeDescription {
		if c != UnknownCode && c.ID() == id {
			return c, true
		}
	}
	return UnknownCode, false
}
