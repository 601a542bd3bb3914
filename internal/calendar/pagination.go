package calendar

// Page описывает одну страницу элементов.
type Page[T any] struct {
	Items    []T // элементы на текущей странице
	Page     int // номер страницы (с 1)
	PageSize int // количество элементов на странице
	Pages    int
	HasNext  bool
	HasPrev  bool
	Total    int // общее количество элементов
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// NormalizePage приводит номер и размер страницы к допустимым значениям.
func NormalizePage(page, pageSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// Offset считает смещение страницы для запроса в БД.
func Offset(page, pageSize int) int {
	page, pageSize = NormalizePage(page, pageSize)
	return (page - 1) * pageSize
}

// NewPage собирает метаданные страницы, уже выбранной из БД.
func NewPage[T any](items []T, page, pageSize, total int) Page[T] {
	page, pageSize = NormalizePage(page, pageSize)
	pages := (total + pageSize - 1) / pageSize
	return Page[T]{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		Pages:    pages,
		HasPrev:  page > 1,
		HasNext:  page*pageSize < total,
		Total:    total,
	}
}

// Paginate возвращает срез items для указанной страницы и метаданные.
func Paginate[T any](items []T, page, pageSize int) Page[T] {
	page, pageSize = NormalizePage(page, pageSize)
	total := len(items)

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return NewPage(items[start:end], page, pageSize, total)
}
