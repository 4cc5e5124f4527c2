package syncjob

import (
	"context"
	"fmt"

	"github.com/gofrs/flock"
)

// SyncLocker はプロセス間で共有される同期ロック。
// 取得できた場合は解放関数を返し、他のプロセスが保持している場合は acquired=false を返す。
type SyncLocker interface {
	TryLock(ctx context.Context) (release func() error, acquired bool, err error)
}

// FileLocker はファイルロック（flock）による SyncLocker。
// 同じファイルシステムを共有するプロセス間でのみ有効。
type FileLocker struct {
	lock *flock.Flock
}

// NewFileLocker はpathをロックファイルとするFileLockerを生成する。
func NewFileLocker(path string) *FileLocker {
	return &FileLocker{lock: flock.New(path)}
}

// TryLock はブロックせずにファイルロックの取得を試みる。
func (l *FileLocker) TryLock(ctx context.Context) (func() error, bool, error) {
	locked, err := l.lock.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("ロックファイル %s: %w", l.lock.Path(), err)
	}
	if !locked {
		return nil, false, nil
	}
	return l.lock.Unlock, true, nil
}
