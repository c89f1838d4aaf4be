package errorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrInvalidLimit 查询 limit 必须为正整数。
var ErrInvalidLimit = errors.New("limit must be a positive integer")

// Filter 查询过滤条件。Page/Status 为空表示不过滤；Limit 为 0 表示不限条数。
type Filter struct {
	Page   string
	Status string
	Limit  int
}

// Store 基于 GORM + SQLite 的页面错误库。
// 每次操作走 GORM 的连接池短会话，允许多线程并发写入；
// 不持有长事务。
type Store struct {
	path string
	db   *gorm.DB
	log  *zap.Logger
}

// DefaultPath 返回每用户数据目录下的默认库路径：
// ~/.local/share/streamlit-healthcheck/streamlit_page_errors.db
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "streamlit-healthcheck", "streamlit_page_errors.db"), nil
}

// New 创建存储。path 为空时使用 DefaultPath。
// 路径只在首次构造时生效，之后不再更换。
func New(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return &Store{path: path, log: log}, nil
}

// Path 返回库文件路径。
func (s *Store) Path() string { return s.path }

// Init 幂等初始化：创建父目录、打开库并迁移表结构。
func (s *Store) Init() error {
	if s.db != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(s.path), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return fmt.Errorf("open error store: %w", err)
	}
	if err := db.AutoMigrate(&ErrorRecord{}); err != nil {
		return fmt.Errorf("migrate error store: %w", err)
	}
	s.db = db
	return nil
}

// Insert 批量写入错误记录。空输入为 no-op。
// 每条记录写为一行，ID 由库单调分配；页面名为空时归一化为 unknown_page。
// 批量中途失败时已写入的行不回滚，底层错误原样上抛。
func (s *Store) Insert(records []ErrorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if s.db == nil {
		return errors.New("error store not initialized")
	}

	rows := make([]ErrorRecord, len(records))
	for i, r := range records {
		r.ID = 0
		if r.Page == "" {
			r.Page = PageUnknown
		}
		rows[i] = r
	}

	if err := s.db.Create(&rows).Error; err != nil {
		return fmt.Errorf("insert error records: %w", err)
	}
	return nil
}

// normalizeTraceback 把任意形态的堆栈归一化为字符串：
// 字符串原样保留，nil 为空串，其余（切片等结构化值）JSON 序列化。
func normalizeTraceback(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// Load 按条件查询记录，时间戳倒序，同一时间戳内按 id 倒序，
// 后写入的记录稳定排前。Limit 必须为正或 0（不限）。
func (s *Store) Load(f Filter) ([]ErrorRecord, error) {
	if s.db == nil {
		return nil, errors.New("error store not initialized")
	}
	if f.Limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, f.Limit)
	}

	q := s.db.Model(&ErrorRecord{}).Order("timestamp DESC, id DESC")
	if f.Page != "" {
		q = q.Where("page = ?", f.Page)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []ErrorRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load error records: %w", err)
	}
	return rows, nil
}

// Clear 删除指定页面的记录。删除失败只记日志，不上抛（尽力清除）。
func (s *Store) Clear(page string) {
	if s.db == nil {
		return
	}
	if err := s.db.Where("page = ?", page).Delete(&ErrorRecord{}).Error; err != nil {
		s.log.Warn("clear page errors failed", zap.String("page", page), zap.Error(err))
	}
}

// ClearAll 删除全部记录。删除失败只记日志，不上抛。
func (s *Store) ClearAll() {
	if s.db == nil {
		return
	}
	if err := s.db.Where("1 = 1").Delete(&ErrorRecord{}).Error; err != nil {
		s.log.Warn("clear all errors failed", zap.Error(err))
	}
}
