// Package fsx 提供原子文件写入：同目录临时文件 + fsync + rename。
//
// 输出 JSON、report、页面归档都经由这里落盘；写入中途失败不会留下半截文件。
package fsx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// 通过可替换的函数指针，让测试能稳定模拟 rename 失败。
var renameFunc = os.Rename

// PathTypeConflictError 表示目标路径类型冲突（例如期望文件但实际是目录）。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// WriteFile 原子写入 path；已存在的普通文件被覆盖，父目录按需创建。
func WriteFile(path string, data []byte) error {
	return writeFileAtomic(path, data, 0o644, true)
}

// WriteFileNoOverwrite 与 WriteFile 相同，但目标已存在时返回 os.ErrExist。
func WriteFileNoOverwrite(path string, data []byte) error {
	return writeFileAtomic(path, data, 0o644, false)
}

func writeFileAtomic(path string, data []byte, perm os.FileMode, replace bool) error {
	dst := filepath.Clean(path)
	dir, name := filepath.Split(dst)
	if name == "" {
		return &PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
	}
	if dir == "" {
		dir = "."
	}

	if fi, err := os.Lstat(dst); err == nil {
		if fi.IsDir() {
			return &PathTypeConflictError{Path: dst, Want: "file", Got: "dir"}
		}
		if !fi.Mode().IsRegular() {
			return &PathTypeConflictError{Path: dst, Want: "regular file", Got: fi.Mode().Type().String()}
		}
		if !replace {
			return os.ErrExist
		}
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// 同目录临时文件（前缀带 '.'），保证 rename 不跨文件系统。
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := writeAll(tmp, data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := renameFunc(tmpName, dst); err != nil {
		return fmt.Errorf("替换 %q 失败：%w", dst, err)
	}

	// 目录 fsync：best-effort。
	_ = syncDirBestEffort(dir)
	return nil
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func syncDirBestEffort(dir string) error {
	// Windows 上目录 Sync 的语义与支持情况不稳定，这里直接跳过。
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
