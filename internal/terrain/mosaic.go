// 包 terrain：Terrarium 高程瓦片拼接与高程解码
package terrain

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"globe-core/internal/logger"
	"globe-core/internal/metrics"

	"github.com/paulmach/orb/maptile"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
)

// TileSize：Terrarium 瓦片边长
const TileSize = 256

const DefaultURL = "https://s3.amazonaws.com/elevation-tiles-prod/terrarium/{z}/{x}/{y}.png"

// Filter：采样过滤方式；高程编码在三个通道里，插值会破坏解码，因此只允许最近邻
type Filter string

const FilterNearest Filter = "nearest"

// Neutral：缺失瓦片的填充色
var Neutral = color.NRGBA{R: 128, G: 128, B: 128, A: 255}

// Mosaic：2^z × 2^z 张瓦片拼成的 Web Mercator 图像
type Mosaic struct {
	Image   *image.NRGBA
	Width   int
	Height  int
	Zoom    int
	Filter  Filter
	Missing []maptile.Tile
}

// 文档注释：拼接构建器
// 背景：TERRARIUM_URL 覆盖瓦片地址模板（{z}/{x}/{y} 占位）；FETCH_CONCURRENCY 控制并发（默认 8）
type Builder struct {
	client *http.Client
	tmpl   string
	limit  int
}

func NewBuilder(client *http.Client) *Builder {
	tmpl := os.Getenv("TERRARIUM_URL")
	if tmpl == "" {
		tmpl = DefaultURL
	}
	limit := 8
	if s := os.Getenv("FETCH_CONCURRENCY"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	return NewBuilderWith(client, tmpl, limit)
}

func NewBuilderWith(client *http.Client, tmpl string, limit int) *Builder {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if limit <= 0 {
		limit = 1
	}
	return &Builder{client: client, tmpl: tmpl, limit: limit}
}

// TileURL：瓦片地址
func (b *Builder) TileURL(t maptile.Tile) string {
	r := strings.NewReplacer(
		"{z}", strconv.Itoa(int(t.Z)),
		"{x}", strconv.FormatUint(uint64(t.X), 10),
		"{y}", strconv.FormatUint(uint64(t.Y), 10),
	)
	return r.Replace(b.tmpl)
}

// 文档注释：构建拼接图
// 背景：先整体填充中性灰，再并发拉取全部瓦片；每个任务都会落定，失败的瓦片保持灰色并记入 Missing
// 约束：只在 ctx 被取消时返回错误；Missing 按 (y, x) 顺序排列
func (b *Builder) Build(ctx context.Context, z int) (*Mosaic, error) {
	if z < 0 || z > 10 {
		return nil, fmt.Errorf("terrain: zoom %d out of range", z)
	}
	n := 1 << z
	w, h := n*TileSize, n*TileSize
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Rect, image.NewUniform(Neutral), image.Point{}, draw.Src)

	t0 := time.Now()
	failed := make([]bool, n*n)
	var g errgroup.Group
	g.SetLimit(b.limit)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			x, y := x, y
			g.Go(func() error {
				t := maptile.New(uint32(x), uint32(y), maptile.Zoom(z))
				tile, err := b.fetchTile(ctx, t)
				if err != nil {
					metrics.TileFetchTotal.WithLabelValues("fail").Inc()
					logger.L().Debug("tile_fetch_failed", "z", z, "x", x, "y", y, "err", err)
					failed[y*n+x] = true
					return nil
				}
				metrics.TileFetchTotal.WithLabelValues("ok").Inc()
				dr := image.Rect(x*TileSize, y*TileSize, (x+1)*TileSize, (y+1)*TileSize)
				// 各瓦片目标矩形互不重叠，可并发写入
				if tile.Bounds().Dx() == TileSize && tile.Bounds().Dy() == TileSize {
					draw.Draw(img, dr, tile, tile.Bounds().Min, draw.Src)
				} else {
					draw.NearestNeighbor.Scale(img, dr, tile, tile.Bounds(), draw.Src, nil)
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := &Mosaic{Image: img, Width: w, Height: h, Zoom: z, Filter: FilterNearest}
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			if failed[y*n+x] {
				m.Missing = append(m.Missing, maptile.New(uint32(x), uint32(y), maptile.Zoom(z)))
			}
		}
	}
	level := logger.L().Info
	if len(m.Missing) > 0 {
		level = logger.L().Warn
	}
	level("terrain_build_done", "z", z, "w", w, "h", h, "missing", len(m.Missing), "ms", time.Since(t0).Milliseconds())
	return m, nil
}

func (b *Builder) fetchTile(ctx context.Context, t maptile.Tile) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.TileURL(t), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("tile %d/%d/%d: status %d", t.Z, t.X, t.Y, resp.StatusCode)
	}
	return png.Decode(resp.Body)
}

// EncodePNG：无损写出（高程编码不能走有损格式）
func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img)
}
