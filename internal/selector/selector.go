// Package selector 提供“候选选择器”策略：按优先级依次尝试，第一个命中的胜出。
//
// 站点结构漂移时只需调整候选列表，抽取逻辑不变。
package selector

import (
	"fmt"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
)

// Selector 在以 root 为根的子树中查找第一个匹配节点；未命中返回 nil。
// 实现必须是只读的，可被多个 goroutine 并发使用。
type Selector interface {
	MatchFirst(root *html.Node) *html.Node
	String() string
}

type cssSelector struct {
	raw string
	sel cascadia.Sel
}

func (s cssSelector) MatchFirst(root *html.Node) *html.Node {
	if root == nil {
		return nil
	}
	return cascadia.Query(root, s.sel)
}

func (s cssSelector) String() string { return "css:" + s.raw }

type xpathSelector struct {
	raw  string
	expr *xpath.Expr
}

func (s xpathSelector) MatchFirst(root *html.Node) *html.Node {
	if root == nil {
		return nil
	}
	return htmlquery.QuerySelector(root, s.expr)
}

func (s xpathSelector) String() string { return "xpath:" + s.raw }

// ParseCSS 编译 CSS 选择器。
func ParseCSS(expr string) (Selector, error) {
	sel, err := cascadia.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("CSS 选择器无效 %q：%w", expr, err)
	}
	return cssSelector{raw: expr, sel: sel}, nil
}

// ParseXPath 编译 XPath 表达式。
func ParseXPath(expr string) (Selector, error) {
	e, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("XPath 表达式无效 %q：%w", expr, err)
	}
	return xpathSelector{raw: expr, expr: e}, nil
}

// CSS 与 ParseCSS 相同，但编译失败直接 panic（只用于包级常量）。
func CSS(expr string) Selector {
	s, err := ParseCSS(expr)
	if err != nil {
		panic(err)
	}
	return s
}

// XPath 与 ParseXPath 相同，但编译失败直接 panic（只用于包级常量）。
func XPath(expr string) Selector {
	s, err := ParseXPath(expr)
	if err != nil {
		panic(err)
	}
	return s
}

// FindFirst 按候选顺序尝试，返回第一个命中的节点及命中的选择器。
// 全部未命中时返回 (nil, nil)。
func FindFirst(root *html.Node, candidates ...Selector) (*html.Node, Selector) {
	for _, c := range candidates {
		if c == nil {
			continue
		}
		if n := c.MatchFirst(root); n != nil {
			return n, c
		}
	}
	return nil, nil
}
