package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/moodmic/backend/internal/audio"
	"github.com/zhouzirui/moodmic/backend/internal/config"
	"github.com/zhouzirui/moodmic/backend/internal/service/analysis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: file 或 record")
	audioPath := flag.String("audio", "", "file 模式下的 WAV 文件路径")
	seconds := flag.Duration("duration", 3*time.Second, "record 模式下的录音时长")
	outputPath := flag.String("out", "", "record 模式下保存 WAV 的路径 (可选)")
	endpoint := flag.String("url", cfg.Analysis.URL, "分析服务地址")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if *mode != "file" && *mode != "record" {
		flag.Usage()
		log.Fatal("请通过 -mode=file 或 -mode=record 指定测试模式")
	}

	client, err := analysis.NewClient(analysis.Config{Endpoint: *endpoint, Token: cfg.Analysis.Token})
	if err != nil {
		log.Fatalf("创建分析客户端失败: %v", err)
	}

	var wav []byte
	switch *mode {
	case "file":
		wav = readFile(*audioPath)
	case "record":
		wav = record(cfg.Capture, *seconds, *outputPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	log.Printf("提交 %d 字节音频到 %s", len(wav), *endpoint)
	result, err := client.Analyze(ctx, wav)
	if err != nil {
		log.Fatalf("分析调用失败: %v", err)
	}

	fmt.Printf("transcription: %s\nemotion:       %s\nresponse:      %s\n",
		result.Transcription, result.Emotion, result.GeminiResponse)
}

func readFile(path string) []byte {
	if path == "" {
		log.Fatal("file 模式需要通过 -audio 指定 WAV 文件路径")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}
	info, err := audio.GetWAVInfo(data)
	if err != nil {
		log.Fatalf("不是有效的 WAV 文件: %v", err)
	}
	log.Printf("WAV: %d Hz, %d ch, %d bit, %.2fs", info.SampleRate, info.Channels, info.BitsPerSample, info.Duration)
	return data
}

func record(capture config.CaptureConfig, d time.Duration, outputPath string) []byte {
	controller := audio.NewController(capture.NewDevice(), capture.NewDecoder())

	if err := controller.Start(context.Background()); err != nil {
		log.Fatalf("开始录音失败: %v", err)
	}
	log.Printf("录音中 %s ...", d)
	time.Sleep(d)

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pcm, err := controller.Stop(stopCtx)
	if err != nil {
		log.Fatalf("停止录音失败: %v", err)
	}
	if pcm == nil {
		log.Fatal("没有采集到音频")
	}

	wav, err := audio.EncodeWAV(pcm.Channel(0), pcm.SampleRate(), capture.WAVChannels())
	if err != nil {
		log.Fatalf("WAV 编码失败: %v", err)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, wav, 0o644); err != nil {
			log.Fatalf("写入音频文件失败: %v", err)
		}
		log.Printf("录音已保存到 %s", outputPath)
	}
	return wav
}
