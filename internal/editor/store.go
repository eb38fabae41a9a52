package editor

import (
	"reflect"
	"sync"

	"cvforge/internal/document"
)

// Store 是文档的唯一持有者：单写者，所有控制器只读快照并通过
// Update 提交替换。绝不原地修改文档。
//
// 订阅按切片划分：WatchContent 只关注 personal 与 sections（刻意排除
// TemplateID，切断 auto-size 写模板再触发自身的回路），WatchDocument
// 关注任何替换。通知是合并式的（缓冲 1，非阻塞发送），慢消费者只会
// 丢中间信号，不会阻塞写入。
type Store struct {
	mu  sync.Mutex
	doc *document.Document

	contentSubs  []chan struct{}
	documentSubs []chan struct{}
}

// NewStore wraps an initial document. A nil document starts empty.
func NewStore(doc *document.Document) *Store {
	if doc == nil {
		doc = &document.Document{TemplateID: document.DefaultTemplateID}
	}
	return &Store{doc: doc}
}

// Document returns the current document pointer. Readers treat it as
// immutable; mutations go through Update with a fresh copy.
func (s *Store) Document() *document.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Update applies fn to the current document and installs its return value.
// If fn returns the original pointer the update is a no-op: the stored
// reference is unchanged and no subscriber is notified. This identity
// guarantee is load-bearing: a recommendation that matches the current
// template must not ripple through the preview pipeline.
func (s *Store) Update(fn func(*document.Document) *document.Document) *document.Document {
	s.mu.Lock()
	old := s.doc
	next := fn(old)
	if next == old {
		s.mu.Unlock()
		return old
	}
	s.doc = next

	contentChanged := old == nil || next == nil ||
		next.Personal != old.Personal ||
		!reflect.DeepEqual(next.Sections, old.Sections)

	content := append([]chan struct{}(nil), s.contentSubs...)
	all := append([]chan struct{}(nil), s.documentSubs...)
	s.mu.Unlock()

	if contentChanged {
		for _, ch := range content {
			signal(ch)
		}
	}
	for _, ch := range all {
		signal(ch)
	}
	return next
}

// Replace installs doc unconditionally (unless identical by reference).
func (s *Store) Replace(doc *document.Document) *document.Document {
	return s.Update(func(*document.Document) *document.Document { return doc })
}

// WatchContent 订阅 personal/sections 变化；模板字段的变化不触发。
func (s *Store) WatchContent() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.contentSubs = append(s.contentSubs, ch)
	s.mu.Unlock()
	return ch
}

// WatchDocument 订阅任何文档替换。
func (s *Store) WatchDocument() <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.documentSubs = append(s.documentSubs, ch)
	s.mu.Unlock()
	return ch
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
