package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileType(t *testing.T) {
	assert.Equal(t, "py", FileType("a/b.py"))
	assert.Equal(t, "js", FileType("a/b.tsx"))
	assert.Equal(t, "md", FileType("README.md"))
	assert.Equal(t, "html", FileType("index.htm"))
	assert.Equal(t, "css", FileType("style.css"))
	assert.Equal(t, "generic", FileType("data.bin"))
}

func TestIsBinary_DetectsNULInFirstKiB(t *testing.T) {
	assert.True(t, IsBinary([]byte("abc\x00def")))
	assert.False(t, IsBinary([]byte("plain text")))
}

func TestIsValidUTF8(t *testing.T) {
	assert.True(t, IsValidUTF8([]byte("hello")))
	assert.False(t, IsValidUTF8([]byte{0xff, 0xfe, 0xfd}))
}

func TestIsTrackerFile(t *testing.T) {
	assert.True(t, IsTrackerFile("auth_module.md"))
	assert.False(t, IsTrackerFile("auth.md"))
}

func TestAnalyzePython_ImportsAndDefs(t *testing.T) {
	src := `
import os
from pkg.sub import thing

class Base:
    pass

class Widget(Base):
    @staticmethod
    def render(self) -> str:
        return "ok"
`
	r := Analyze("w.py", "py", []byte(src), int64(len(src)))

	assert.Contains(t, r.Imports, "os")
	assert.Contains(t, r.Imports, "pkg.sub")
	assert.Contains(t, r.Classes, "Base")
	assert.Contains(t, r.Classes, "Widget")
	assert.Contains(t, r.Inheritance, "Base")
	assert.Contains(t, r.Functions, "render")
	assert.Contains(t, r.DecoratorsUsed, DecoratorUsage{Name: "staticmethod", TargetKind: TargetMethod})
}

func TestAnalyzePython_DecoratorsTaggedByTargetKind(t *testing.T) {
	src := `
@app.route("/")
def handler():
    pass

@dataclass
class Config:
    @property
    def value(self):
        @wraps(value)
        def inner():
            pass
        return inner

@dataclass
class Outer:
    class Inner:
        pass
`
	r := Analyze("w.py", "py", []byte(src), int64(len(src)))

	assert.Contains(t, r.DecoratorsUsed, DecoratorUsage{Name: "app.route", TargetKind: TargetFunction})
	assert.Contains(t, r.DecoratorsUsed, DecoratorUsage{Name: "dataclass", TargetKind: TargetClass})
	assert.Contains(t, r.DecoratorsUsed, DecoratorUsage{Name: "property", TargetKind: TargetMethod})
	assert.Contains(t, r.DecoratorsUsed, DecoratorUsage{Name: "wraps", TargetKind: TargetNestedFunction})
}

func TestAnalyzePython_ExceptAndWith(t *testing.T) {
	src := `
try:
    pass
except ValueError:
    pass

with open("f") as fh:
    pass
`
	r := Analyze("w.py", "py", []byte(src), int64(len(src)))

	assert.Contains(t, r.ExceptionsHandled, "ValueError")
	assert.NotEmpty(t, r.WithContextsUsed)
}

func TestAnalyzeJavaScript_ImportsAndExports(t *testing.T) {
	src := `
import React from 'react';
const fs = require('fs');

export default function App() {}
export class Widget extends Base {}
export { helper as util };
`
	r := Analyze("a.js", "js", []byte(src), int64(len(src)))

	assert.Contains(t, r.Imports, "react")
	assert.Contains(t, r.Imports, "fs")
	assert.Contains(t, r.Classes, "Widget")
	assert.Contains(t, r.Inheritance, "Base")
	assert.Contains(t, r.Exports, "App")
	assert.Contains(t, r.Exports, "util")
}

func TestAnalyzeMarkdown_LinksAndCodeBlocks(t *testing.T) {
	src := "[see](./other.md) and [site](https://example.com) and [anchor](#top)\n" +
		"```go\nfmt.Println(1)\n```\n"
	r := Analyze("doc.md", "md", []byte(src), int64(len(src)))

	assert.Contains(t, r.Links, "./other.md")
	assert.NotContains(t, r.Links, "https://example.com")
	assert.NotContains(t, r.Links, "#top")
	assert.Contains(t, r.CodeBlocks, "go")
}

func TestAnalyzeHTML_ExtractsTargets(t *testing.T) {
	src := `<a href="page.html">l</a><script src="app.js"></script>` +
		`<link rel="stylesheet" href="style.css"><img src="pic.png">`
	r := Analyze("idx.html", "html", []byte(src), int64(len(src)))

	assert.Contains(t, r.Links, "page.html")
	assert.Contains(t, r.Scripts, "app.js")
	assert.Contains(t, r.Stylesheets, "style.css")
	assert.Contains(t, r.Images, "pic.png")
}

func TestAnalyzeCSS_Imports(t *testing.T) {
	src := `@import url("base.css"); @import "theme.css";`
	r := Analyze("s.css", "css", []byte(src), int64(len(src)))

	assert.Contains(t, r.Imports, "base.css")
	assert.Contains(t, r.Imports, "theme.css")
}
