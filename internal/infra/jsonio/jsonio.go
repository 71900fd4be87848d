// Package jsonio 负责 stubs/details 文件的读取与原子写出。
//
// 输出格式固定：2 空格缩进、不转义 HTML、以换行结尾。
package jsonio

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/John-Robertt/geeharvest/internal/domain"
	"github.com/John-Robertt/geeharvest/internal/infra/fsx"
)

// ReadStubs 读取目录条目文件：JSON 数组或 JSON Lines（自动识别）。
func ReadStubs(path string) ([]domain.DatasetStub, error) {
	return readRecords[domain.DatasetStub](path)
}

// ReadDetails 读取详情文件（格式同 ReadStubs）。
func ReadDetails(path string) ([]domain.DatasetDetail, error) {
	out, err := readRecords[domain.DatasetDetail](path)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Normalize()
	}
	return out, nil
}

func readRecords[T any](path string) ([]T, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out, err := decodeRecords[T](b)
	if err != nil {
		return nil, fmt.Errorf("解析 %q 失败：%w", path, err)
	}
	return out, nil
}

// decodeRecords 首个非空白字符为 '[' 时按数组解析，否则按逐条 JSON 值（JSON Lines）解析。
func decodeRecords[T any](b []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return []T{}, nil
	}

	if trimmed[0] == '[' {
		var out []T
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, err
		}
		if out == nil {
			out = []T{}
		}
		return out, nil
	}

	out := make([]T, 0, 64)
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	for n := 1; ; n++ {
		var v T
		if err := dec.Decode(&v); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("第 %d 条记录：%w", n, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Marshal 按固定格式编码 v。
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile 以固定格式原子写出 v。
func WriteFile(path string, v any) error {
	b, err := Marshal(v)
	if err != nil {
		return err
	}
	return fsx.WriteFile(path, b)
}
